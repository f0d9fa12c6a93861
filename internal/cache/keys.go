package cache

import (
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

// EmbeddingKey addresses a cached embedding by model and exact input text.
func EmbeddingKey(model, text string) string {
	return fmt.Sprintf("embed:%s:%x", model, sha256.Sum256([]byte(text)))
}
