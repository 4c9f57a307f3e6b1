package classify

import "golang.org/x/text/language"

// Locale selects the language for user-facing messages. It is always an
// explicit parameter: one classifier serves concurrent requests in different
// locales.
type Locale string

const (
	LocaleRU Locale = "ru"
	LocaleUZ Locale = "uz"
	LocaleEN Locale = "en"
)

// DefaultLocale is used when nothing else matches.
const DefaultLocale = LocaleRU

var supportedTags = []language.Tag{
	language.Russian,
	language.Uzbek,
	language.English,
}

var localeByIndex = []Locale{LocaleRU, LocaleUZ, LocaleEN}

var matcher = language.NewMatcher(supportedTags)

// ParseLocale maps a configured locale string to a Locale, defaulting to
// Russian for anything unrecognized.
func ParseLocale(s string) Locale {
	switch Locale(s) {
	case LocaleRU, LocaleUZ, LocaleEN:
		return Locale(s)
	default:
		return DefaultLocale
	}
}

// MatchLocale resolves caller-preferred language tags (e.g. parsed from an
// Accept-Language header) against the supported set, falling back to the
// given locale when nothing matches.
func MatchLocale(fallback Locale, prefs ...language.Tag) Locale {
	if len(prefs) == 0 {
		return fallback
	}
	_, idx, conf := matcher.Match(prefs...)
	if conf == language.No {
		return fallback
	}
	return localeByIndex[idx]
}

// User-facing message table. Strings are fixed per code; nothing from the
// raw upstream error ever reaches the user.
var messages = map[Code]map[Locale]string{
	InvalidPhone: {
		LocaleRU: "Неверный формат номера телефона.",
		LocaleUZ: "Telefon raqami formati noto'g'ri.",
		LocaleEN: "Invalid phone number format.",
	},
	AlreadyPending: {
		LocaleRU: "Код уже был отправлен. Подождите минуту.",
		LocaleUZ: "Kod allaqachon jo'natilgan. Bir daqiqa kuting.",
		LocaleEN: "A code was already sent. Wait a minute.",
	},
	ServiceUnavailable: {
		LocaleRU: "SMS сервис временно недоступен.",
		LocaleUZ: "SMS xizmati vaqtincha mavjud emas.",
		LocaleEN: "SMS service temporarily unavailable.",
	},
	AuthenticationFailed: {
		LocaleRU: "Ошибка аутентификации SMS сервиса.",
		LocaleUZ: "SMS xizmati autentifikatsiya xatosi.",
		LocaleEN: "SMS service authentication failed.",
	},
	QuotaExceeded: {
		LocaleRU: "Недостаточно средств на балансе SMS сервиса.",
		LocaleUZ: "SMS xizmati balansida mablag' yetarli emas.",
		LocaleEN: "Insufficient balance in SMS service.",
	},
	CodeExpired: {
		LocaleRU: "Код подтверждения истек. Запросите новый код.",
		LocaleUZ: "Tasdiqlash kodi muddati tugagan. Yangi kod so'rang.",
		LocaleEN: "Verification code expired. Request a new code.",
	},
	CodeInvalid: {
		LocaleRU: "Неверный код подтверждения.",
		LocaleUZ: "Tasdiqlash kodi noto'g'ri.",
		LocaleEN: "Invalid verification code.",
	},
	TooManyAttempts: {
		LocaleRU: "Превышено количество попыток. Попробуйте позже.",
		LocaleUZ: "Urinishlar soni oshib ketdi. Keyinroq urinib ko'ring.",
		LocaleEN: "Too many attempts. Try again later.",
	},
	UnknownError: {
		LocaleRU: "Произошла неизвестная ошибка.",
		LocaleUZ: "Noma'lum xato yuz berdi.",
		LocaleEN: "An unknown error occurred.",
	},
}

var actions = map[Code]map[Locale]string{
	InvalidPhone: {
		LocaleRU: "Введите номер в формате +998XXXXXXXXX.",
		LocaleUZ: "Raqamni +998XXXXXXXXX formatida kiriting.",
		LocaleEN: "Enter number in format +998XXXXXXXXX.",
	},
	AlreadyPending: {
		LocaleRU: "Подождите 1 минуту перед отправкой нового кода.",
		LocaleUZ: "Yangi kod jo'natishdan oldin 1 daqiqa kuting.",
		LocaleEN: "Wait 1 minute before sending new code.",
	},
	ServiceUnavailable: {
		LocaleRU: "Попробуйте позже или обратитесь в поддержку.",
		LocaleUZ: "Keyinroq urinib ko'ring yoki qo'llab-quvvatlashga murojaat qiling.",
		LocaleEN: "Try later or contact support.",
	},
	QuotaExceeded: {
		LocaleRU: "Обратитесь к администратору для пополнения баланса.",
		LocaleUZ: "Balansni to'ldirish uchun administratorga murojaat qiling.",
		LocaleEN: "Contact administrator to top up balance.",
	},
	CodeExpired: {
		LocaleRU: "Нажмите \"Отправить код повторно\".",
		LocaleUZ: "\"Kodni qayta jo'natish\" tugmasini bosing.",
		LocaleEN: "Tap \"Resend code\".",
	},
	TooManyAttempts: {
		LocaleRU: "Подождите 5 минут перед следующей попыткой.",
		LocaleUZ: "Keyingi urinishdan oldin 5 daqiqa kuting.",
		LocaleEN: "Wait 5 minutes before next attempt.",
	},
}

func messageFor(code Code, loc Locale) string {
	byLocale, ok := messages[code]
	if !ok {
		byLocale = messages[UnknownError]
	}
	if msg, ok := byLocale[loc]; ok {
		return msg
	}
	return byLocale[DefaultLocale]
}

func actionFor(code Code, loc Locale) string {
	byLocale, ok := actions[code]
	if !ok {
		return ""
	}
	if a, ok := byLocale[loc]; ok {
		return a
	}
	return byLocale[DefaultLocale]
}
