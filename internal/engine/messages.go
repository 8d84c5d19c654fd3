package engine

import (
	"golang.org/x/text/language"
)

var supportedLanguages = []language.Tag{
	language.English, // first entry is the fallback
	language.Czech,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

const fallbackCode = "unknown_error"

// messages maps reason codes, AppError codes and backend RPC error codes to a
// message per supported language base.
var messages = map[string]map[string]string{
	// upload admission
	"unknown_use_case": {
		"en": "This type of upload is not supported.",
		"cs": "Tento typ nahrávání není podporován.",
	},
	"mime_not_allowed": {
		"en": "This file type is not allowed here.",
		"cs": "Tento typ souboru zde není povolen.",
	},
	"invalid_size": {
		"en": "The file size is invalid.",
		"cs": "Velikost souboru je neplatná.",
	},
	"file_too_large": {
		"en": "The file is too large.",
		"cs": "Soubor je příliš velký.",
	},
	"path_not_allowed": {
		"en": "You cannot upload files to this location.",
		"cs": "Do tohoto umístění nemůžete nahrávat soubory.",
	},
	"bucket_not_allowed": {
		"en": "This storage bucket is not allowed for this upload.",
		"cs": "Toto úložiště není pro tento soubor povoleno.",
	},
	"rule_violated": {
		"en": "The file does not meet the upload requirements.",
		"cs": "Soubor nesplňuje požadavky na nahrání.",
	},

	// API errors
	"UNAUTHORIZED": {
		"en": "Please sign in to continue.",
		"cs": "Pro pokračování se prosím přihlaste.",
	},
	"FORBIDDEN": {
		"en": "You do not have permission to do this.",
		"cs": "K této akci nemáte oprávnění.",
	},
	"NOT_FOUND": {
		"en": "The requested item was not found.",
		"cs": "Požadovaná položka nebyla nalezena.",
	},
	"CONFLICT": {
		"en": "This record already exists.",
		"cs": "Tento záznam již existuje.",
	},
	"RATE_LIMITED": {
		"en": "Too many requests. Please try again shortly.",
		"cs": "Příliš mnoho požadavků. Zkuste to prosím za chvíli.",
	},
	"INVALID_PAYLOAD": {
		"en": "The request is invalid.",
		"cs": "Požadavek je neplatný.",
	},

	// backend RPC errors
	"reservation_overlap": {
		"en": "The item is already reserved for the selected dates.",
		"cs": "Položka je ve vybraném termínu již rezervována.",
	},
	"insufficient_stock": {
		"en": "Not enough units are available.",
		"cs": "Není k dispozici dostatek kusů.",
	},
	"invalid_dates": {
		"en": "The selected dates are invalid.",
		"cs": "Vybraná data jsou neplatná.",
	},
	"reservation_not_found": {
		"en": "The reservation was not found.",
		"cs": "Rezervace nebyla nalezena.",
	},
	"23505": {
		"en": "This record already exists.",
		"cs": "Tento záznam již existuje.",
	},
	"42501": {
		"en": "You do not have permission to do this.",
		"cs": "K této akci nemáte oprávnění.",
	},

	fallbackCode: {
		"en": "Something went wrong. Please try again.",
		"cs": "Něco se pokazilo. Zkuste to prosím znovu.",
	},
}

// MatchLanguage picks the supported language base for an Accept-Language
// header value. Anything unparseable falls back to English.
func MatchLanguage(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return "en"
	}
	_, idx, _ := languageMatcher.Match(tags...)
	base, _ := supportedLanguages[idx].Base()
	return base.String()
}

// Localize returns the user-facing message for code in the language best
// matching acceptLanguage. Unknown codes get the generic message.
func Localize(code, acceptLanguage string) string {
	lang := MatchLanguage(acceptLanguage)
	byLang, ok := messages[code]
	if !ok {
		byLang = messages[fallbackCode]
	}
	if msg, ok := byLang[lang]; ok {
		return msg
	}
	return byLang["en"]
}

// KnownMessage reports whether code has a dedicated message.
func KnownMessage(code string) bool {
	_, ok := messages[code]
	return ok
}
