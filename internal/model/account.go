package model

// AccountState is the capital the sizer risks a fraction of.
type AccountState struct {
	Capital      float64
	RiskFraction float64
	Leverage     float64
}

// Instrument carries the per-symbol contract details used for pip math, sizing and PnL.
type Instrument struct {
	Symbol string `yaml:"symbol"`
	// PipSize is the price increment of one pip (0.0001 for most currency pairs).
	PipSize float64 `yaml:"pip_size"`
	// PipValue is the account-currency value of one pip for one unit of size.
	PipValue     float64 `yaml:"pip_value"`
	ContractSize float64 `yaml:"contract_size"`
	VolumeMin    float64 `yaml:"volume_min"`
	VolumeMax    float64 `yaml:"volume_max"`
	VolumeStep   float64 `yaml:"volume_step"`
	// MaxStopDistance caps |entry-stop| in price units; 0 disables the cap.
	MaxStopDistance float64 `yaml:"max_stop_distance"`
}

// DefaultInstrument prices one unit of size at one currency unit per price unit.
func DefaultInstrument(symbol string) Instrument {
	return Instrument{Symbol: symbol, PipSize: 1, PipValue: 1, ContractSize: 1}
}

// WithDefaults fills zero fields so the instrument is safe to compute with.
func (in Instrument) WithDefaults() Instrument {
	if in.PipSize <= 0 {
		in.PipSize = 1
	}
	if in.PipValue <= 0 {
		in.PipValue = in.PipSize
	}
	if in.ContractSize <= 0 {
		in.ContractSize = 1
	}
	return in
}

// PointValue is the account-currency value of a 1.0 price move for one unit of size.
func (in Instrument) PointValue() float64 {
	in = in.WithDefaults()
	return in.PipValue / in.PipSize
}

// PipScale converts a price distance into pips.
func (in Instrument) PipScale() float64 {
	return 1 / in.WithDefaults().PipSize
}
