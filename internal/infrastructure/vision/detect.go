package vision

import (
	"eyecare-bot/internal/domain/entity"
)

// Candidate кандидат детекции в пиксельных координатах исходного фото.
type Candidate struct {
	Box        entity.BoundingBox
	Confidence float64
}

// BestCandidate отбрасывает кандидатов ниже порога и возвращает лучшего.
// Побеждает максимальная уверенность; при равенстве остаётся более ранний
// в порядке обхода выхода модели — выбор детерминированный.
func BestCandidate(candidates []Candidate, floor float64) (Candidate, bool) {
	best := Candidate{}
	found := false
	for _, c := range candidates {
		if c.Confidence < floor {
			continue
		}
		if !found || c.Confidence > best.Confidence {
			best = c
			found = true
		}
	}
	return best, found
}

// parseDetections разбирает сырой выход детектора: плоский массив строк
// [cx, cy, w, h, score, (классы...)]. Для одноклассовой модели строка
// состоит из пяти чисел. scaleX/scaleY переводят координаты входа сети
// обратно в пиксели исходного фото.
func parseDetections(out []float32, rowLen int, scaleX, scaleY float64) []Candidate {
	if rowLen < 5 || len(out) < rowLen {
		return nil
	}

	candidates := make([]Candidate, 0, len(out)/rowLen)
	for i := 0; i+rowLen <= len(out); i += rowLen {
		row := out[i : i+rowLen]
		score := float64(row[4])
		if rowLen > 5 {
			// многоклассовый выход: objectness * лучший класс
			bestClass := row[5]
			for _, s := range row[6:] {
				if s > bestClass {
					bestClass = s
				}
			}
			score *= float64(bestClass)
		}

		cx, cy := float64(row[0]), float64(row[1])
		w, h := float64(row[2]), float64(row[3])
		candidates = append(candidates, Candidate{
			Box: entity.BoundingBox{
				X1: int((cx - w/2) * scaleX),
				Y1: int((cy - h/2) * scaleY),
				X2: int((cx + w/2) * scaleX),
				Y2: int((cy + h/2) * scaleY),
			},
			Confidence: score,
		})
	}
	return candidates
}

// letterboxFit параметры вписывания кадра w x h в квадрат target x target
// с сохранением пропорций и центрированием.
type letterboxFit struct {
	newW, newH int // размер после масштабирования
	offX, offY int // отступы до центра холста
}

func fitLetterbox(w, h, target int) letterboxFit {
	if w <= 0 || h <= 0 {
		return letterboxFit{}
	}
	scale := float64(target) / float64(w)
	if h > w {
		scale = float64(target) / float64(h)
	}
	fit := letterboxFit{
		newW: int(float64(w) * scale),
		newH: int(float64(h) * scale),
	}
	fit.offX = (target - fit.newW) / 2
	fit.offY = (target - fit.newH) / 2
	return fit
}
