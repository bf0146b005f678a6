package models_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geomark-lab/geomark-api/internal/models"
)

func TestNewElement_DerivesMaxScore(t *testing.T) {
	element, err := models.NewElement("accuracy", []models.Criterion{
		{Score: 0, Description: "wrong"},
		{Score: 10, Description: "perfect"},
		{Score: 5, Description: "partial"},
	})
	require.NoError(t, err)
	require.Equal(t, 10, element.MaxScore)
}

func TestNewElement_RejectsInvalidCriteria(t *testing.T) {
	_, err := models.NewElement("accuracy", []models.Criterion{{Score: -1, Description: "negative"}})
	require.ErrorIs(t, err, models.ErrCriterionInvalid)

	_, err = models.NewElement("accuracy", []models.Criterion{{Score: 5, Description: "  "}})
	require.ErrorIs(t, err, models.ErrCriterionInvalid)

	_, err = models.NewElement("  ", []models.Criterion{{Score: 5, Description: "fine"}})
	require.Error(t, err)
}

func TestNewRubric_Validation(t *testing.T) {
	element, err := models.NewElement("accuracy", []models.Criterion{{Score: 5, Description: "fine"}})
	require.NoError(t, err)

	_, err = models.NewRubric("", []models.Element{element})
	require.ErrorIs(t, err, models.ErrRubricNameEmpty)

	_, err = models.NewRubric("landforms", nil)
	require.ErrorIs(t, err, models.ErrRubricNoElements)

	rubric, err := models.NewRubric("landforms", []models.Element{element})
	require.NoError(t, err)
	require.Equal(t, 5, rubric.TotalMaxScore())
	require.Equal(t, []string{"accuracy"}, rubric.ElementNames())
}
