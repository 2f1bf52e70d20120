package vision

import (
	"encoding/json"
	"fmt"
	"os"

	"eyecare-bot/internal/domain/entity"
)

// Порядок классов на выходе модели.
const (
	classCataract = iota
	classConjunctivitis
)

// dominantClass выбирает доминирующий класс по паре сигмоидных
// вероятностей. При равенстве приоритет у конъюнктивита.
func dominantClass(pCataract, pConjunctivitis float64) (entity.Condition, float64, int) {
	if pCataract > pConjunctivitis {
		return entity.ConditionCataract, pCataract, classCataract
	}
	return entity.ConditionConjunctivitis, pConjunctivitis, classConjunctivitis
}

// HeadWeights веса линейной головы классификатора. OpenCV DNN не даёт
// доступа к параметрам сети, поэтому голова экспортируется рядом с ONNX
// отдельным JSON-файлом и используется для аналитического расчёта
// градиентов доминирующего логита.
type HeadWeights struct {
	Weights [][]float32 `json:"weights"` // [класс][канал]
}

// LoadHeadWeights читает веса головы из JSON-файла.
func LoadHeadWeights(path string) (*HeadWeights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read head weights: %w", err)
	}

	var head HeadWeights
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse head weights: %w", err)
	}
	if len(head.Weights) == 0 {
		return nil, fmt.Errorf("head weights file %s has no classes", path)
	}
	channels := len(head.Weights[0])
	for i, row := range head.Weights {
		if len(row) != channels || channels == 0 {
			return nil, fmt.Errorf("head weights class %d has inconsistent channel count", i)
		}
	}
	return &head, nil
}
