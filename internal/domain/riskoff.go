package domain

import "time"

// RiskOffRecord suprime nuevas compras en un instrumento hasta SleepTill.
// Lo escribe un proceso de riesgo externo; el engine solo lo lee.
type RiskOffRecord struct {
	MarketID  string
	SleepTill time.Time
	Reason    string
}

// Active indica si el periodo de risk-off sigue vigente.
func (r RiskOffRecord) Active(now time.Time) bool {
	return now.Before(r.SleepTill)
}
