package service

import (
	"fmt"
	"sort"
	"strings"

	"wallet-cluster-analyzer/internal/domain/entity"
)

// similarityFloor hides behavioural comparisons too weak to be worth stating
const similarityFloor = 0.5

// RenderReasons turns the structured evidence of contributing signals into
// human readable sentences, strongest contribution first
func RenderReasons(signals []entity.EvidenceSignal) []string {
	ordered := append([]entity.EvidenceSignal(nil), signals...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Contribution() > ordered[j].Contribution()
	})

	reasons := []string{}
	for _, signal := range ordered {
		if signal.RawScore <= 0 {
			continue
		}
		for _, item := range signal.Evidence {
			if reason := renderItem(item); reason != "" {
				reasons = append(reasons, reason)
			}
		}
	}
	return reasons
}

func renderItem(item entity.EvidenceItem) string {
	switch item.Kind {
	case entity.EvidenceConnection:
		if item.Magnitude <= 1 {
			return "Direct transfer counterparty of the main wallet"
		}
		return fmt.Sprintf("Reached in %d hops via %s", int(item.Magnitude), strings.Join(item.SupportingAddresses, ", "))
	case entity.EvidenceSharedFunder:
		return fmt.Sprintf("Funded by %s shared with the main wallet: %s",
			plural(int(item.Magnitude), "wallet"), strings.Join(item.SupportingAddresses, ", "))
	case entity.EvidenceSharedCounterparty:
		return fmt.Sprintf("Sends to %s also paid by the main wallet: %s",
			plural(int(item.Magnitude), "counterparty", "counterparties"), strings.Join(item.SupportingAddresses, ", "))
	case entity.EvidenceAmountSimilarity:
		return similarity(item.Magnitude, "Similar average transfer size")
	case entity.EvidenceFrequencySimilarity:
		return similarity(item.Magnitude, "Similar transaction rate")
	case entity.EvidenceHourSimilarity:
		return similarity(item.Magnitude, "Active in the same hours of the day")
	case entity.EvidenceActiveOverlap:
		if item.Magnitude <= 0 {
			return ""
		}
		return fmt.Sprintf("Active in %.0f%% of the same time windows", item.Magnitude*100)
	case entity.EvidenceSameSlot:
		return fmt.Sprintf("Transacted in the same slot as the main wallet %s", plural(int(item.Magnitude), "time"))
	}
	return ""
}

func similarity(magnitude float64, label string) string {
	if magnitude < similarityFloor {
		return ""
	}
	return fmt.Sprintf("%s (%.0f%%)", label, magnitude*100)
}

func plural(n int, singular string, pluralForm ...string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	if len(pluralForm) > 0 {
		return fmt.Sprintf("%d %s", n, pluralForm[0])
	}
	return fmt.Sprintf("%d %ss", n, singular)
}
