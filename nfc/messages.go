package nfc

import "golang.org/x/text/language"

var supportedLanguages = []language.Tag{
	language.English, // first entry is the fallback
	language.Spanish,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

// Indexed like supportedLanguages.
var localizedMessages = map[ErrorCode][]string{
	ErrCodeNFCNotAvailable: {
		"This device has no NFC reader",
		"Este dispositivo no tiene lector NFC",
	},
	ErrCodeNFCDisabled: {
		"NFC is turned off, enable it and try again",
		"NFC está desactivado, actívalo e inténtalo de nuevo",
	},
	ErrCodeTagNotSupported: {
		"This tag type is not supported, use an NTAG or Ultralight tag",
		"Este tipo de etiqueta no es compatible, usa una etiqueta NTAG o Ultralight",
	},
	ErrCodeTagReadOnly: {
		"This tag is locked and cannot be written",
		"Esta etiqueta está bloqueada y no se puede escribir",
	},
	ErrCodeTagTooSmall: {
		"This tag is too small, use a tag with more memory",
		"Esta etiqueta es demasiado pequeña, usa una con más memoria",
	},
	ErrCodeTagLost: {
		"Tag lost, bring it close again",
		"Se perdió la etiqueta, acércala de nuevo",
	},
	ErrCodeTagIO: {
		"Could not talk to the tag, hold it still and try again",
		"No se pudo comunicar con la etiqueta, mantenla quieta e inténtalo de nuevo",
	},
	ErrCodeInvalidNDEF: {
		"The tag contents are damaged, rewrite it to use it",
		"El contenido de la etiqueta está dañado, vuelve a escribirla para usarla",
	},
	ErrCodeInvalidPayload: {
		"The tag identity is not valid",
		"La identidad de la etiqueta no es válida",
	},
	ErrCodeChecksumMismatch: {
		"The tag identity failed verification",
		"La identidad de la etiqueta no superó la verificación",
	},
	ErrCodeWriteFailed: {
		"Writing the tag failed, try again",
		"No se pudo escribir la etiqueta, inténtalo de nuevo",
	},
	ErrCodeTagAlreadyRegistered: {
		"This tag is already registered",
		"Esta etiqueta ya está registrada",
	},
	ErrCodeUnknown: {
		"Something went wrong, try again",
		"Algo salió mal, inténtalo de nuevo",
	},
}

// LocalizedMessage returns the short user-facing message for code in the
// closest supported language. lang is a BCP 47 tag or an Accept-Language
// header value; empty or unknown values fall back to English.
func LocalizedMessage(code ErrorCode, lang string) string {
	msgs, ok := localizedMessages[code]
	if !ok {
		msgs = localizedMessages[ErrCodeUnknown]
	}
	return msgs[languageIndex(lang)]
}

func languageIndex(lang string) int {
	if lang == "" {
		return 0
	}
	tags, _, err := language.ParseAcceptLanguage(lang)
	if err != nil || len(tags) == 0 {
		return 0
	}
	_, idx, conf := languageMatcher.Match(tags...)
	if conf == language.No {
		return 0
	}
	return idx
}
