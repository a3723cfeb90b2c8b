package botsync

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Plan is the set of studio mutations that makes the remote flows match the
// local ones.
type Plan struct {
	ToDelete []Flow
	ToUpdate []Flow
	ToCreate []Flow
}

// ComputePlan matches flows by name. Deletes and updates follow remote
// order, creates follow local order. The first local flow with a given name
// wins. Names match only when they are the same JSON type and value, so a
// string "1" never matches the number 1.
func ComputePlan(local, remote []Flow) Plan {
	plan := Plan{
		ToDelete: []Flow{},
		ToUpdate: []Flow{},
		ToCreate: []Flow{},
	}
	localByName := make(map[string]Flow, len(local))
	for _, flow := range local {
		key, ok := nameKey(flow)
		if !ok {
			continue
		}
		if _, seen := localByName[key]; !seen {
			localByName[key] = flow
		}
	}
	remoteNames := make(map[string]struct{}, len(remote))
	for _, remoteFlow := range remote {
		key, ok := nameKey(remoteFlow)
		if ok {
			remoteNames[key] = struct{}{}
			if localFlow, found := localByName[key]; found {
				plan.ToUpdate = append(plan.ToUpdate, Merge(remoteFlow, localFlow))
				continue
			}
		}
		plan.ToDelete = append(plan.ToDelete, remoteFlow)
	}
	for _, localFlow := range local {
		if key, ok := nameKey(localFlow); ok {
			if _, found := remoteNames[key]; found {
				continue
			}
		}
		plan.ToCreate = append(plan.ToCreate, localFlow)
	}
	return plan
}

// nameKey encodes a flow's name with its JSON type. Objects, arrays and
// undecodable values match nothing.
func nameKey(flow Flow) (string, bool) {
	raw, ok := flow[fieldName]
	if !ok {
		return "missing", true
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	switch v := value.(type) {
	case nil:
		return "null", true
	case string:
		return "s:" + v, true
	case float64:
		return "n:" + strconv.FormatFloat(v, 'g', -1, 64), true
	case bool:
		return "b:" + strconv.FormatBool(v), true
	default:
		return "", false
	}
}

func (p Plan) Empty() bool {
	return len(p.ToDelete) == 0 && len(p.ToUpdate) == 0 && len(p.ToCreate) == 0
}

// DuplicateNames returns names that appear more than once in flows, sorted.
func DuplicateNames(flows []Flow) []string {
	counts := map[string]int{}
	display := map[string]string{}
	for _, flow := range flows {
		key, ok := nameKey(flow)
		if !ok {
			continue
		}
		counts[key]++
		display[key] = flow.Name()
	}
	var out []string
	for key, count := range counts {
		if count > 1 {
			out = append(out, display[key])
		}
	}
	sort.Strings(out)
	return out
}
