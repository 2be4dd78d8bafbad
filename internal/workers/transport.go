package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"tripweave/orchestrator/internal/dispatch"
	"tripweave/orchestrator/pkg/types"
)

// transportEntry is one catalog departure, priced per traveler. Times are
// hours-of-day on the departure date.
type transportEntry struct {
	carrier     string
	mode        string
	departHour  int
	arriveHour  int
	perTraveler float64
}

// transportCatalog lists the departures offered on any route. Real
// providers would price per route; the static catalog keeps planning
// deterministic.
var transportCatalog = []transportEntry{
	{"British Airways", "flight", 8, 11, 420},
	{"Lufthansa", "flight", 14, 17, 310},
	{"Delta", "flight", 19, 22, 250},
	{"Eurostar", "train", 9, 14, 150},
	{"JetBlue", "flight", 21, 23, 190},
}

// TransportWorker serves the TRANSPORT capability over the static catalog.
type TransportWorker struct{}

// NewTransportWorker creates a transport worker.
func NewTransportWorker() *TransportWorker {
	return &TransportWorker{}
}

// Capability implements Worker.
func (w *TransportWorker) Capability() types.Capability {
	return types.CapabilityTransport
}

// Handle returns departures on the requested date ranked cheapest first,
// filtered to the preferred mode when one is named.
func (w *TransportWorker) Handle(ctx context.Context, inv *dispatch.Invocation) (*types.TaskOutput, error) {
	var payload types.TransportSearchPayload
	if err := json.Unmarshal(inv.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid transport payload: %w", err)
	}
	if payload.Travelers < 1 {
		return nil, fmt.Errorf("at least one traveler is required")
	}

	var candidates []types.Option
	for i, e := range transportCatalog {
		if payload.PreferredMode != "" && e.mode != payload.PreferredMode {
			continue
		}
		candidates = append(candidates, types.Option{
			Ref:       fmt.Sprintf("transport:%s-%d", slug(e.carrier), i),
			Name:      fmt.Sprintf("%s %s %s -> %s", e.carrier, e.mode, payload.Origin, payload.Destination),
			TotalCost: e.perTraveler * float64(payload.Travelers),
			Window: types.TimeWindow{
				Start: atHour(payload.DepartDate, e.departHour),
				End:   atHour(payload.DepartDate, e.arriveHour),
			},
			Available: true,
			Mode:      e.mode,
			Location:  payload.Origin,
		})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no %s departures from %s to %s", payload.PreferredMode, payload.Origin, payload.Destination)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].TotalCost < candidates[j].TotalCost
	})
	return &types.TaskOutput{
		TaskID:     inv.TaskID,
		Capability: types.CapabilityTransport,
		Candidates: candidates,
	}, nil
}

// atHour pins a time to the given hour on the date's day.
func atHour(date time.Time, hour int) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, hour, 0, 0, 0, date.Location())
}
