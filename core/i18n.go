package core

import "log/slog"

// Language represents a supported language
type Language string

const (
	LangAuto    Language = "" // auto-detect from the task text
	LangEnglish Language = "en"
	LangChinese Language = "zh"
)

// I18n provides internationalized progress messages
type I18n struct {
	lang     Language
	detected Language
	saveFunc func(Language) error
}

func NewI18n(lang Language) *I18n {
	return &I18n{lang: lang}
}

func DetectLanguage(text string) Language {
	for _, r := range text {
		if isChinese(r) {
			return LangChinese
		}
	}
	return LangEnglish
}

func isChinese(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}

// SetSaveFunc installs a persistence hook invoked whenever auto-detection
// changes the language.
func (i *I18n) SetSaveFunc(fn func(Language) error) {
	i.saveFunc = fn
}

// DetectAndSet updates the detected language from user text (auto mode only).
func (i *I18n) DetectAndSet(text string) {
	if i.lang != LangAuto {
		return
	}
	detected := DetectLanguage(text)
	if i.detected != detected {
		i.detected = detected
		if i.saveFunc != nil {
			if err := i.saveFunc(detected); err != nil {
				slog.Warn("failed to save detected language", "error", err)
			}
		}
	}
}

func (i *I18n) currentLang() Language {
	if i.lang == LangAuto {
		if i.detected != "" {
			return i.detected
		}
		return LangEnglish
	}
	return i.lang
}

// CurrentLang returns the resolved language.
func (i *I18n) CurrentLang() Language { return i.currentLang() }

// SetLang overrides the language (disabling auto-detect).
func (i *I18n) SetLang(lang Language) {
	i.lang = lang
	i.detected = ""
}

// T returns the message for the given key in the current language.
func (i *I18n) T(key MsgKey) string {
	if m, ok := messages[key]; ok {
		if s, ok := m[i.currentLang()]; ok {
			return s
		}
		return m[LangEnglish]
	}
	return string(key)
}

// Message keys
type MsgKey string

const (
	MsgTaskCompleted MsgKey = "task_completed"
	MsgMaxSteps      MsgKey = "max_steps"
	MsgAborted       MsgKey = "aborted"
	MsgCurrentApp    MsgKey = "current_app"
	MsgTaskRunning   MsgKey = "task_running"
	MsgDeviceOffline MsgKey = "device_offline"
)

var messages = map[MsgKey]map[Language]string{
	MsgTaskCompleted: {
		LangEnglish: "Task completed",
		LangChinese: "任务完成",
	},
	MsgMaxSteps: {
		LangEnglish: "Max steps reached",
		LangChinese: "已达到最大步数",
	},
	MsgAborted: {
		LangEnglish: "Task aborted",
		LangChinese: "任务已中止",
	},
	MsgCurrentApp: {
		LangEnglish: "Current app: %s",
		LangChinese: "当前应用: %s",
	},
	MsgTaskRunning: {
		LangEnglish: "⏳ A task is already running on this device, please wait...",
		LangChinese: "⏳ 该设备上已有任务在执行，请稍候...",
	},
	MsgDeviceOffline: {
		LangEnglish: "Device is not available: %s",
		LangChinese: "设备不可用: %s",
	},
}

// DefaultSystemPrompt returns the built-in phone-operation prompt for the
// given language. Callers may override it via AgentConfig.SystemPrompt.
func DefaultSystemPrompt(lang Language) string {
	if lang == LangChinese {
		return defaultSystemPromptZH
	}
	return defaultSystemPromptEN
}

const defaultSystemPromptEN = `You are a phone operation assistant. On every turn you receive a
screenshot of the current screen and the name of the foreground app.
Think about what to do next, then commit to exactly one action.

Reply in this format:
<think>your reasoning</think>
<answer>one action call</answer>

Available actions:
do(action="Tap", element=[x, y])
do(action="Swipe", start=[x, y], end=[x, y])
do(action="Type", text="...")
do(action="Scroll", direction="up|down|left|right")
do(action="Back")
do(action="Home")
do(action="Launch", app="package name")
do(action="Wait")
finish(message="what was accomplished")

Coordinates are absolute pixels on the screenshot. Issue exactly one
action per turn. Call finish when the task is done or cannot proceed.`

const defaultSystemPromptZH = `你是一个手机操作助手。每一轮你会收到当前屏幕截图和前台应用名称。
先思考下一步该做什么，然后给出唯一一个操作。

回复格式：
<think>你的思考过程</think>
<answer>一个操作调用</answer>

可用操作：
do(action="Tap", element=[x, y])
do(action="Swipe", start=[x, y], end=[x, y])
do(action="Type", text="...")
do(action="Scroll", direction="up|down|left|right")
do(action="Back")
do(action="Home")
do(action="Launch", app="包名")
do(action="Wait")
finish(message="完成情况说明")

坐标为截图上的绝对像素。每轮只执行一个操作。任务完成或无法继续时调用 finish。`
