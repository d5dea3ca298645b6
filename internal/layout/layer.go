package layout

import "racecal/internal/model"

// AssignLayers stacks clipped events into layers using greedy first-fit in
// input order: each event goes to the lowest layer holding no event whose
// clipped span overlaps its own, or to a new layer.
//
// The input slice is not modified. The returned count is max(layer)+1, or 0
// for no events. The result is not a globally optimal coloring, only the
// deterministic first-fit one for this order.
func AssignLayers(clipped []model.ClippedEvent) ([]model.ClippedEvent, int) {
	out := make([]model.ClippedEvent, len(clipped))
	var layers [][]model.ClippedEvent

	for i, c := range clipped {
		idx := 0
		for ; idx < len(layers); idx++ {
			if fits(layers[idx], c) {
				break
			}
		}
		if idx == len(layers) {
			layers = append(layers, nil)
		}
		c.Layer = idx
		layers[idx] = append(layers[idx], c)
		out[i] = c
	}

	return out, len(layers)
}

func fits(layer []model.ClippedEvent, c model.ClippedEvent) bool {
	for _, x := range layer {
		if Overlaps(c.ClippedStart, c.ClippedEnd, x.ClippedStart, x.ClippedEnd) {
			return false
		}
	}
	return true
}
