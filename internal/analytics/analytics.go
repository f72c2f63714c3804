// Package analytics derives delivery statistics from the broadcast ledger.
// It is pure computation over store data; nothing here talks to Telegram.
package analytics

import (
	"sort"

	"signalbot/internal/store"
)

// ChannelStats aggregates outcomes for one destination across all recorded
// broadcasts, including destinations no longer registered.
type ChannelStats struct {
	Channel   string
	OK        int
	Forbidden int
	Failed    int
}

func (c ChannelStats) Total() int { return c.OK + c.Forbidden + c.Failed }

// Summary is a point-in-time view over the whole ledger.
type Summary struct {
	Broadcasts  int // ledger entries, no_channels included
	NoChannels  int
	Sends       int // individual channel deliveries attempted
	Delivered   int
	Forbidden   int
	Failed      int
	PerChannel  []ChannelStats // sorted by channel id
	Registered  int
	LastEntries []store.LedgerEntry // newest first, at most Recent
}

// Recent is how many trailing ledger entries a Summary carries.
const Recent = 5

// SuccessRate is the delivered fraction of attempted sends, in [0, 1].
// Zero sends yields 0.
func (s Summary) SuccessRate() float64 {
	if s.Sends == 0 {
		return 0
	}
	return float64(s.Delivered) / float64(s.Sends)
}

// Summarize folds the ledger into a Summary. channels is the currently
// registered set, used only for the Registered count.
func Summarize(posts []store.LedgerEntry, channels []string) Summary {
	sum := Summary{
		Broadcasts: len(posts),
		Registered: len(channels),
	}
	byChannel := map[string]*ChannelStats{}
	for _, p := range posts {
		if p.Status == store.LedgerNoChannels {
			sum.NoChannels++
		}
		for _, r := range p.Results {
			sum.Sends++
			cs := byChannel[r.Channel]
			if cs == nil {
				cs = &ChannelStats{Channel: r.Channel}
				byChannel[r.Channel] = cs
			}
			switch r.Outcome {
			case store.OutcomeOK:
				sum.Delivered++
				cs.OK++
			case store.OutcomeForbidden:
				sum.Forbidden++
				cs.Forbidden++
			default:
				sum.Failed++
				cs.Failed++
			}
		}
	}

	sum.PerChannel = make([]ChannelStats, 0, len(byChannel))
	for _, cs := range byChannel {
		sum.PerChannel = append(sum.PerChannel, *cs)
	}
	sort.Slice(sum.PerChannel, func(i, j int) bool {
		return sum.PerChannel[i].Channel < sum.PerChannel[j].Channel
	})

	n := len(posts)
	for i := n - 1; i >= 0 && i >= n-Recent; i-- {
		sum.LastEntries = append(sum.LastEntries, posts[i])
	}
	return sum
}
