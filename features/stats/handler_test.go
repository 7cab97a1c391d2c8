package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockQuarantine struct{ mock.Mock }

func (m *MockQuarantine) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockProbe struct{ mock.Mock }

func (m *MockProbe) IsConnected(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func TestHandler_GetStats_Table(t *testing.T) {
	tests := []struct {
		name       string
		ledger     bool
		setupMocks func(*MockProbe, *MockQuarantine)
		wantStatus int
		checkBody  func(*testing.T, map[string]interface{})
	}{
		{
			name:   "Success",
			ledger: true,
			setupMocks: func(p *MockProbe, q *MockQuarantine) {
				p.On("IsConnected", mock.Anything).Return(true)
				q.On("Count", mock.Anything).Return(5, nil)
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				data := body["data"].(map[string]interface{})
				assert.Equal(t, "beanstalk", data["backend"])
				assert.Equal(t, "default", data["queue"])
				assert.Equal(t, true, data["connected"])
				assert.EqualValues(t, 5, data["quarantined"])
			},
		},
		{
			name:   "Ledger Disabled",
			ledger: false,
			setupMocks: func(p *MockProbe, q *MockQuarantine) {
				p.On("IsConnected", mock.Anything).Return(false)
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				data := body["data"].(map[string]interface{})
				assert.Equal(t, false, data["connected"])
				_, ok := data["quarantined"]
				assert.False(t, ok)
			},
		},
		{
			name:   "Count Error",
			ledger: true,
			setupMocks: func(p *MockProbe, q *MockQuarantine) {
				p.On("IsConnected", mock.Anything).Return(true)
				q.On("Count", mock.Anything).Return(0, errors.New("db error"))
			},
			wantStatus: http.StatusInternalServerError,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				errObj := body["error"].(map[string]interface{})
				assert.Equal(t, "INTERNAL_ERROR", errObj["code"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := new(MockProbe)
			q := new(MockQuarantine)
			tt.setupMocks(p, q)

			var counter QuarantineCounter
			if tt.ledger {
				counter = q
			}
			h := NewHandler("beanstalk", "default", p, counter)

			req := httptest.NewRequest("GET", "/stats", nil)
			w := httptest.NewRecorder()
			h.GetStats(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body map[string]interface{}
			assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			tt.checkBody(t, body)
			p.AssertExpectations(t)
			q.AssertExpectations(t)
		})
	}
}
