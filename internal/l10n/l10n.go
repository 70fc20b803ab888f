package l10n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/rs/zerolog"
	"github.com/tim-gee/telegram-otp-bot/internal/utils"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFiles embed.FS

var (
	bundle                *i18n.Bundle
	locales               = map[string]*Localizer{}
	languageTags          []language.Tag
	languageTagsCanonical []string
)

func SupportedTagsCanonical() []string {
	return languageTagsCanonical
}

type Localizer struct {
	l      *i18n.Localizer
	logger zerolog.Logger
	tag    language.Tag
}

// InitL10n loads the embedded message files for tags. The first tag is the
// fallback for unsupported languages. Call it once during startup.
func InitL10n(ctx context.Context, tags []language.Tag) {
	zlog := *zerolog.Ctx(ctx)

	utils.Assert(len(tags) != 0, "The langs slice can not be empty")
	languageTags = tags
	languageTagsCanonical = nil
	locales = map[string]*Localizer{}

	bundle = i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	logEvent := zlog.Info()
	for _, tag := range languageTags {
		canonical := tag.String()
		filePath := fmt.Sprintf("locales/%s.json", canonical)
		utils.Must(bundle.LoadMessageFileFS(localeFiles, filePath))
		locales[canonical] = &Localizer{l: i18n.NewLocalizer(bundle, canonical), logger: zlog, tag: tag}
		languageTagsCanonical = append(languageTagsCanonical, canonical)
		logEvent.Str(canonical, filePath)
	}
	logEvent.Msg("Localization files loaded")
}

// ParseTag parses lang, falling back to the first supported tag.
func ParseTag(lang string) language.Tag {
	tag, err := language.Parse(lang)
	if err != nil || len(languageTags) == 0 {
		if len(languageTags) != 0 {
			return languageTags[0]
		}
		return language.English
	}
	return tag
}

func GetLocalizer(tag language.Tag) *Localizer {
	canonical := tag.String()
	if _, ok := locales[canonical]; !ok {
		l := locales[languageTags[0].String()]
		l.logger.Error().Msgf("Language %s not found, will default to %s", canonical, languageTags[0].String())
		return l
	}
	return locales[canonical]
}

func (l *Localizer) GetLanguageTag() language.Tag {
	return l.tag
}

func (l *Localizer) GetWithId(id string) string {
	return l.localizeMsg(id, nil)
}

func (l *Localizer) GetWithData(id string, data map[string]any) string {
	utils.Assert(data != nil, "The data map can not be nil")
	utils.Assert(len(data) != 0, "The data map should not be empty")

	return l.localizeMsg(id, data)
}

func (l *Localizer) localizeMsg(id string, data any) string {
	cfg := &i18n.LocalizeConfig{
		DefaultMessage: defaultMessage(id),
		TemplateData:   data,
	}

	str, err := l.l.Localize(cfg)
	if err != nil {
		errLog := l.logger.Error().Err(err).Str("id", id)
		if d, ok := data.(map[string]any); ok {
			errLog.Fields(d)
		}
		errLog.Msg("Error getting localized message")

		str = id
	}

	return str
}

func defaultMessage(id string) *i18n.Message {
	return &i18n.Message{
		ID:    id,
		Other: id,
	}
}
