package main

import (
	"github.com/zhouzirui/fin-advisor/backend/internal/cache"
)

// messages holds the widget chrome per language. Advisor replies are not
// translated.
var messages = map[string]map[string]string{
	"en": {
		"welcome":   "Namaste! Ask me about savings, investing, taxes or budgeting. Type /help for commands.",
		"help":      "Commands: /login <email|username> <password>, /logout, /reset, /history, /lang <en|hi>, /quit",
		"signedin":  "Signed in as %s. %d earlier messages moved to your account, %d could not be saved.",
		"signedout": "Signed out. New messages are saved as a guest.",
		"reset":     "Conversation and local data cleared.",
		"empty":     "No conversations yet.",
		"bye":       "Goodbye!",
		"unknown":   "Unknown command. Type /help.",
		"language":  "Language set to %s.",
	},
	"hi": {
		"welcome":   "नमस्ते! बचत, निवेश, कर या बजट के बारे में पूछें। आदेशों के लिए /help लिखें।",
		"help":      "आदेश: /login <email|username> <password>, /logout, /reset, /history, /lang <en|hi>, /quit",
		"signedin":  "%s के रूप में साइन इन। %d पुराने संदेश आपके खाते में गए, %d सहेजे नहीं जा सके।",
		"signedout": "साइन आउट हो गया। नए संदेश अतिथि के रूप में सहेजे जाएंगे।",
		"reset":     "बातचीत और स्थानीय डेटा साफ़ किया गया।",
		"empty":     "अभी कोई बातचीत नहीं।",
		"bye":       "अलविदा!",
		"unknown":   "अज्ञात आदेश। /help लिखें।",
		"language":  "भाषा %s पर सेट की गई।",
	},
}

func supportedLanguage(lang string) bool {
	_, ok := messages[lang]
	return ok
}

// language returns the cached language, falling back to the configured one.
func (a *app) language() string {
	var lang string
	if ok, err := cache.Load(a.cache, cache.KeyLanguage, cache.KindLanguage, &lang); err == nil && ok && supportedLanguage(lang) {
		return lang
	}
	if supportedLanguage(a.cfg.Language) {
		return a.cfg.Language
	}
	return "en"
}

func (a *app) setLanguage(lang string) error {
	return cache.Put(a.cache, cache.KeyLanguage, cache.KindLanguage, lang)
}

func (a *app) text(key string) string {
	if s, ok := messages[a.language()][key]; ok {
		return s
	}
	return messages["en"][key]
}
