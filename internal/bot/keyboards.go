// keyboards.go — inline-клавиатура выбора качества и подпись к ней.
package bot

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/go-telegram/bot/models"

	"github.com/DenysHerasymchuk/DAYN/internal/media"
)

// callbackPrefix — префикс callback-данных кнопок загрузки.
const callbackPrefix = "dl"

// audioSelector — селектор «только аудио» в callback-данных.
const audioSelector = "audio"

// buildQualityKeyboard строит клавиатуру выбора качества: от низкого
// к высокому, по две кнопки в ряд, внизу — «только аудио».
// Оценочные размеры помечаются тильдой.
func buildQualityKeyboard(job string, info *media.Info) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton
	var row []models.InlineKeyboardButton

	// Qualities отсортированы от высокого к низкому; пользователю
	// удобнее от низкого к высокому
	for i := len(info.Qualities) - 1; i >= 0; i-- {
		q := info.Qualities[i]
		row = append(row, models.InlineKeyboardButton{
			Text:         qualityLabel(q),
			CallbackData: fmt.Sprintf("%s:%s:%d", callbackPrefix, job, q.Height),
		})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	rows = append(rows, []models.InlineKeyboardButton{{
		Text:         audioLabel(info),
		CallbackData: fmt.Sprintf("%s:%s:%s", callbackPrefix, job, audioSelector),
	}})

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// qualityLabel — подпись кнопки качества: «720p — 45 MB».
func qualityLabel(q media.QualityOption) string {
	size := humanize.Bytes(uint64(q.SizeBytes))
	if q.Estimated {
		return fmt.Sprintf("%dp — ~%s", q.Height, size)
	}
	return fmt.Sprintf("%dp — %s", q.Height, size)
}

// audioLabel — подпись кнопки «только аудио».
func audioLabel(info *media.Info) string {
	size := humanize.Bytes(uint64(info.AudioSizeBytes))
	if info.AudioEstimated {
		return fmt.Sprintf("🎵 Только аудио — ~%s", size)
	}
	return fmt.Sprintf("🎵 Только аудио — %s", size)
}

// buildCaption — подпись сообщения с выбором качества.
func buildCaption(info *media.Info) string {
	return fmt.Sprintf("🎬 %s\n👤 %s\n🕐 Длительность: %s\n\nВыберите качество:",
		info.Title, info.Author, info.Duration)
}
