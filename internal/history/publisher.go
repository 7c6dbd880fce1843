package history

import (
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
)

// Publisher posts run records to an external experiment tracker.
type Publisher struct {
	rest *resty.Client
	base string
}

func NewPublisher(baseURL string, timeout time.Duration) *Publisher {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second)
	}
	return &Publisher{rest: r, base: baseURL}
}

// runPayload is the wire form of a Record. Losses for absent subsets are
// NaN in memory and null on the wire.
type runPayload struct {
	Kind             string    `json:"kind"`
	Fold             int       `json:"fold"`
	Loss             *float64  `json:"loss"`
	InnerValLoss     *float64  `json:"inner_val_loss"`
	MeanOuterValLoss *float64  `json:"mean_outer_val_loss"`
	MeanTestLoss     *float64  `json:"mean_test_loss"`
	RMSETrain        *float64  `json:"rmse_train"`
	MAETrain         *float64  `json:"mae_train"`
	RMSEInnerVal     *float64  `json:"rmse_inner_val"`
	MAEInnerVal      *float64  `json:"mae_inner_val"`
	RMSEOuterVal     *float64  `json:"rmse_outer_val"`
	MAEOuterVal      *float64  `json:"mae_outer_val"`
	RMSETest         *float64  `json:"rmse_test"`
	MAETest          *float64  `json:"mae_test"`
	Ts               time.Time `json:"ts"`
}

func nilIfNaN(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// Publish posts the record to the tracker's runs endpoint.
func (p *Publisher) Publish(rec Record) error {
	payload := runPayload{
		Kind:             rec.Kind,
		Fold:             rec.Fold,
		Loss:             nilIfNaN(rec.Loss),
		InnerValLoss:     nilIfNaN(rec.InnerValLoss),
		MeanOuterValLoss: nilIfNaN(rec.MeanOuterValLoss),
		MeanTestLoss:     nilIfNaN(rec.MeanTestLoss),
		RMSETrain:        nilIfNaN(rec.RMSETrain),
		MAETrain:         nilIfNaN(rec.MAETrain),
		RMSEInnerVal:     nilIfNaN(rec.RMSEInnerVal),
		MAEInnerVal:      nilIfNaN(rec.MAEInnerVal),
		RMSEOuterVal:     nilIfNaN(rec.RMSEOuterVal),
		MAEOuterVal:      nilIfNaN(rec.MAEOuterVal),
		RMSETest:         nilIfNaN(rec.RMSETest),
		MAETest:          nilIfNaN(rec.MAETest),
		Ts:               rec.Ts,
	}

	resp, err := p.rest.R().
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(p.base + "/api/v1/runs")
	if err != nil {
		return fmt.Errorf("publish run: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("tracker returned %s", resp.Status())
	}
	return nil
}
