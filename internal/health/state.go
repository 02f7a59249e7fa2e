package health

// state.go: máquina de estados de salud compartida por live y replay.
// No existe ningún otro gating de estado fuera de este paquete.

// State es el estado operacional del trader.
type State string

const (
	StateStarting State = "STARTING"
	StateWarming  State = "WARMING"
	StateRunning  State = "RUNNING"
	StateDegraded State = "DEGRADED"
)

// InitialState es el estado con el que arranca todo pipeline.
const InitialState = StateStarting

// Config son los umbrales de frescura y latencia.
type Config struct {
	MaxLatencyMs int64
	MaxStaleMs   int64
}

// DefaultConfig devuelve los umbrales por defecto (1.5s latencia, 5s stale).
func DefaultConfig() Config {
	return Config{MaxLatencyMs: 1_500, MaxStaleMs: 5_000}
}

// Snapshot es la evaluación de salud derivada de un evento.
// La staleness no es un error: se pliega aquí y degrada la máquina de estados.
type Snapshot struct {
	ExchangeTs    int64
	IngestTs      int64
	LatencyMs     int64
	SpotAgeMs     *int64
	PmAgeMs       *int64
	FeaturesReady bool
	SpotFresh     bool
	PmFresh       bool
	LatencyOk     bool
	DataFresh     bool
}

// Ok devuelve el healthOk combinado que alimenta las transiciones.
func (s Snapshot) Ok() bool {
	return s.DataFresh && s.FeaturesReady
}

// SnapshotArgs son las entradas para construir un Snapshot.
// Un age nil significa "sin dato que evaluar" y cuenta como fresco.
type SnapshotArgs struct {
	ExchangeTs    int64
	IngestTs      int64
	SpotAgeMs     *int64
	PmAgeMs       *int64
	FeaturesReady bool
}

// MakeSnapshot deriva el Snapshot a partir de edades y timestamps.
func MakeSnapshot(cfg Config, args SnapshotArgs) Snapshot {
	latency := args.IngestTs - args.ExchangeTs
	if latency < 0 {
		latency = 0
	}
	spotFresh := args.SpotAgeMs == nil || *args.SpotAgeMs <= cfg.MaxStaleMs
	pmFresh := args.PmAgeMs == nil || *args.PmAgeMs <= cfg.MaxStaleMs
	latencyOk := latency <= cfg.MaxLatencyMs

	return Snapshot{
		ExchangeTs:    args.ExchangeTs,
		IngestTs:      args.IngestTs,
		LatencyMs:     latency,
		SpotAgeMs:     args.SpotAgeMs,
		PmAgeMs:       args.PmAgeMs,
		FeaturesReady: args.FeaturesReady,
		SpotFresh:     spotFresh,
		PmFresh:       pmFresh,
		LatencyOk:     latencyOk,
		DataFresh:     spotFresh && pmFresh && latencyOk,
	}
}

// Next aplica la tabla de transiciones:
//
//	STARTING → WARMING (ok) | STARTING
//	WARMING  → RUNNING (ok) | STARTING
//	RUNNING  → RUNNING (ok) | DEGRADED
//	DEGRADED → RUNNING (ok) | DEGRADED
//
// Desde DEGRADED se vuelve directo a RUNNING: el warm-up no se repite.
func Next(prev State, snap Snapshot) State {
	ok := snap.Ok()
	switch prev {
	case StateStarting:
		if ok {
			return StateWarming
		}
		return StateStarting
	case StateWarming:
		if ok {
			return StateRunning
		}
		return StateStarting
	case StateRunning, StateDegraded:
		if ok {
			return StateRunning
		}
		return StateDegraded
	default:
		return StateStarting
	}
}
