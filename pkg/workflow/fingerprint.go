package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/ctihunt/workflowengine/pkg/models"
)

// inputFingerprint hashes the article content and the prior stage outputs
// visible to a stage, so StageResult.input_fingerprint lets an operator
// confirm two attempts saw identical input (§3 StageResult.input_fingerprint).
func inputFingerprint(article *models.Article, prior map[models.StageName]models.StageOutput) string {
	h := sha256.New()
	h.Write([]byte(article.ContentHash))
	h.Write([]byte(article.Content))
	for _, name := range stageOrder {
		out, ok := prior[name]
		if !ok {
			continue
		}
		b, err := json.Marshal(out)
		if err != nil {
			continue
		}
		h.Write([]byte(name))
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil))
}
