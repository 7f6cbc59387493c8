package service

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointRegistry_ActiveClient(t *testing.T) {
	db, mock, cleanup := setupGormMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM `ai_models`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "base_url", "api_key", "sort_order"}).
			AddRow(1, "本地 Ollama", "http://localhost:11434", "", 0))

	r := NewEndpointRegistry(db, time.Second, time.Second)
	client, err := r.ActiveClient()
	require.NoError(t, err)
	assert.NotNil(t, client)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEndpointRegistry_NoEndpoints(t *testing.T) {
	db, mock, cleanup := setupGormMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM `ai_models`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	r := NewEndpointRegistry(db, time.Second, time.Second)
	_, err := r.ActiveClient()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInferenceUnavailable))
}
