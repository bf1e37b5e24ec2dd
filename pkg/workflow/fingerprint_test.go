package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ctihunt/workflowengine/pkg/models"
)

func TestInputFingerprintDeterministicForSameInput(t *testing.T) {
	article := &models.Article{ID: "a1", ContentHash: "h1", Content: "some content"}
	prior := map[models.StageName]models.StageOutput{
		models.StageOSDetect: models.OSDetectOutput{Platform: models.OSPlatformWindows},
	}

	fp1 := inputFingerprint(article, prior)
	fp2 := inputFingerprint(article, prior)
	assert.Equal(t, fp1, fp2)
	assert.NotEmpty(t, fp1)
}

func TestInputFingerprintChangesWithPriorOutput(t *testing.T) {
	article := &models.Article{ID: "a1", ContentHash: "h1", Content: "some content"}

	fpWindows := inputFingerprint(article, map[models.StageName]models.StageOutput{
		models.StageOSDetect: models.OSDetectOutput{Platform: models.OSPlatformWindows},
	})
	fpLinux := inputFingerprint(article, map[models.StageName]models.StageOutput{
		models.StageOSDetect: models.OSDetectOutput{Platform: models.OSPlatformLinux},
	})

	assert.NotEqual(t, fpWindows, fpLinux)
}

func TestInputFingerprintChangesWithContent(t *testing.T) {
	fpA := inputFingerprint(&models.Article{ID: "a1", ContentHash: "h1", Content: "one"}, nil)
	fpB := inputFingerprint(&models.Article{ID: "a1", ContentHash: "h2", Content: "two"}, nil)
	assert.NotEqual(t, fpA, fpB)
}
