// Package locale resolves display and dictation languages and localizes
// server status messages.
package locale

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// DefaultSpeechLanguage is the dictation language used when none is set.
const DefaultSpeechLanguage = "en-US"

// Supported lists the display languages, English first as the fallback.
var Supported = []language.Tag{
	language.English,
	language.Russian,
	language.Arabic,
	language.Spanish,
	language.Turkish,
	language.Portuguese,
	language.Indonesian,
	language.Hindi,
	language.French,
	language.Italian,
	language.German,
	language.Japanese,
	language.Dutch,
	language.Polish,
	language.Swedish,
	language.Danish,
	language.Finnish,
	language.Norwegian,
	language.Korean,
	language.Greek,
	language.Czech,
	language.Hungarian,
	language.Thai,
}

var matcher = language.NewMatcher(Supported)

// Match returns the supported display language closest to pref, or English.
// pref may be a single tag or an Accept-Language header value.
func Match(pref string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(pref)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return language.English
	}
	return Supported[idx]
}

// IsSupported reports whether code names a supported display language
// exactly.
func IsSupported(code string) bool {
	tag, err := language.Parse(code)
	if err != nil {
		return false
	}
	for _, s := range Supported {
		if s == tag {
			return true
		}
	}
	return false
}

// NormalizeSpeech returns the canonical form of a dictation language tag.
// Dictation needs a region, so bare languages and invalid tags fall back to
// DefaultSpeechLanguage.
func NormalizeSpeech(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return DefaultSpeechLanguage
	}
	base, _ := tag.Base()
	region, conf := tag.Region()
	if conf != language.Exact {
		return DefaultSpeechLanguage
	}
	t, err := language.Compose(base, region)
	if err != nil {
		return DefaultSpeechLanguage
	}
	return t.String()
}

// Message keys. The English text is the key.
const (
	MsgGenerationFailed    = "Could not generate content. Please try again."
	MsgGenerationCancelled = "Generation cancelled."
	MsgGenerationTimeout   = "Generation took too long and was stopped."
	MsgEditRejected        = "Content exceeds the %d character limit."
	MsgStorageDegraded     = "Notes storage is unavailable. Changes may not be saved."
	MsgNoteNotFound        = "Note not found."
	MsgEmptyNote           = "Title and content are required."
)

var translations = map[language.Tag]map[string]string{
	language.Russian: {
		MsgGenerationFailed:    "Не удалось сгенерировать текст. Попробуйте ещё раз.",
		MsgGenerationCancelled: "Генерация отменена.",
		MsgGenerationTimeout:   "Генерация заняла слишком много времени и была остановлена.",
		MsgEditRejected:        "Текст превышает лимит в %d символов.",
		MsgStorageDegraded:     "Хранилище заметок недоступно. Изменения могут не сохраниться.",
		MsgNoteNotFound:        "Заметка не найдена.",
		MsgEmptyNote:           "Нужны заголовок и текст.",
	},
	language.Spanish: {
		MsgGenerationFailed:    "No se pudo generar el contenido. Inténtalo de nuevo.",
		MsgGenerationCancelled: "Generación cancelada.",
		MsgGenerationTimeout:   "La generación tardó demasiado y se detuvo.",
		MsgEditRejected:        "El contenido supera el límite de %d caracteres.",
		MsgStorageDegraded:     "El almacenamiento de notas no está disponible. Es posible que los cambios no se guarden.",
		MsgNoteNotFound:        "Nota no encontrada.",
		MsgEmptyNote:           "Se requieren título y contenido.",
	},
	language.German: {
		MsgGenerationFailed:    "Inhalt konnte nicht erstellt werden. Bitte versuche es erneut.",
		MsgGenerationCancelled: "Erstellung abgebrochen.",
		MsgGenerationTimeout:   "Die Erstellung hat zu lange gedauert und wurde gestoppt.",
		MsgEditRejected:        "Der Inhalt überschreitet das Limit von %d Zeichen.",
		MsgStorageDegraded:     "Der Notizspeicher ist nicht verfügbar. Änderungen werden eventuell nicht gespeichert.",
		MsgNoteNotFound:        "Notiz nicht gefunden.",
		MsgEmptyNote:           "Titel und Inhalt sind erforderlich.",
	},
	language.French: {
		MsgGenerationFailed:    "Impossible de générer le contenu. Veuillez réessayer.",
		MsgGenerationCancelled: "Génération annulée.",
		MsgGenerationTimeout:   "La génération a pris trop de temps et a été arrêtée.",
		MsgEditRejected:        "Le contenu dépasse la limite de %d caractères.",
		MsgStorageDegraded:     "Le stockage des notes est indisponible. Les modifications risquent de ne pas être enregistrées.",
		MsgNoteNotFound:        "Note introuvable.",
		MsgEmptyNote:           "Le titre et le contenu sont obligatoires.",
	},
	language.Portuguese: {
		MsgGenerationFailed:    "Não foi possível gerar o conteúdo. Tente novamente.",
		MsgGenerationCancelled: "Geração cancelada.",
		MsgGenerationTimeout:   "A geração demorou demais e foi interrompida.",
		MsgEditRejected:        "O conteúdo excede o limite de %d caracteres.",
		MsgStorageDegraded:     "O armazenamento de notas está indisponível. As alterações podem não ser salvas.",
		MsgNoteNotFound:        "Nota não encontrada.",
		MsgEmptyNote:           "Título e conteúdo são obrigatórios.",
	},
}

var cat = newCatalog()

func newCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range translations {
		for key, msg := range msgs {
			if err := b.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
	return b
}

// Printer returns a printer for the display language closest to pref.
func Printer(pref string) *message.Printer {
	return message.NewPrinter(Match(pref), message.Catalog(cat))
}

// Sprintf localizes key for pref.
func Sprintf(pref, key string, args ...any) string {
	return Printer(pref).Sprintf(key, args...)
}
