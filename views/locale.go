package views

import (
	"strconv"
	"strings"
	"time"
)

// Messages are the fixed UI strings of one locale.
type Messages struct {
	Lang          string
	LoadMore      string
	Loading       string
	LoadFailed    string
	Dismiss       string
	TryAgain      string
	MinutesSuffix string
	NotFound      string
	ServerError   string
	BackHome      string
	PreviewActive string
	ExitPreview   string
}

var messages = map[string]Messages{
	"pt-BR": {
		Lang:          "pt-BR",
		LoadMore:      "Carregar mais posts",
		Loading:       "Carregando...",
		LoadFailed:    "Não foi possível carregar mais posts.",
		Dismiss:       "Fechar",
		TryAgain:      "Tentar novamente",
		MinutesSuffix: "min",
		NotFound:      "Página não encontrada.",
		ServerError:   "Algo deu errado. Tente novamente mais tarde.",
		BackHome:      "Voltar para o início",
		PreviewActive: "Modo de pré-visualização",
		ExitPreview:   "Sair",
	},
	"en": {
		Lang:          "en",
		LoadMore:      "Load more posts",
		Loading:       "Loading...",
		LoadFailed:    "Could not load more posts.",
		Dismiss:       "Dismiss",
		TryAgain:      "Try again",
		MinutesSuffix: "min",
		NotFound:      "Page not found.",
		ServerError:   "Something went wrong. Please try again later.",
		BackHome:      "Back to home",
		PreviewActive: "Preview mode",
		ExitPreview:   "Exit",
	},
}

// MessagesFor returns the strings for locale, falling back to pt-BR.
func MessagesFor(locale string) Messages {
	if m, ok := messages[canonicalLocale(locale)]; ok {
		return m
	}
	return messages["pt-BR"]
}

// SupportedLocale reports whether locale has its own strings and month names.
func SupportedLocale(locale string) bool {
	_, ok := messages[canonicalLocale(locale)]
	return ok
}

func canonicalLocale(locale string) string {
	l := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(locale), "_", "-"))
	switch {
	case l == "pt-br" || l == "pt":
		return "pt-BR"
	case l == "en" || strings.HasPrefix(l, "en-"):
		return "en"
	}
	return locale
}

var months = map[string][12]string{
	"pt-BR": {"jan", "fev", "mar", "abr", "mai", "jun", "jul", "ago", "set", "out", "nov", "dez"},
	"en":    {"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"},
}

// FormatDate renders t as "dd MMM yyyy" with the locale's abbreviated month
// name, e.g. "15 mar 2021" for pt-BR. A nil time renders as "".
func FormatDate(t *time.Time, locale string) string {
	if t == nil || t.IsZero() {
		return ""
	}
	names, ok := months[canonicalLocale(locale)]
	if !ok {
		names = months["pt-BR"]
	}
	d := t.UTC()
	day := strconv.Itoa(d.Day())
	if len(day) == 1 {
		day = "0" + day
	}
	return day + " " + names[d.Month()-1] + " " + strconv.Itoa(d.Year())
}

// ISODate renders t as YYYY-MM-DD for machine-readable attributes.
func ISODate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
