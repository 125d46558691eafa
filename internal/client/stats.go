package client

import (
	"fmt"
	"time"

	"github.com/verte-zerg/topy/internal/phpser"
	"github.com/verte-zerg/topy/internal/stats"
)

// Stats is the decoded reply of the stats command.
type Stats struct {
	Uptime   int64
	Users    int64
	Commands []stats.Counter
}

// Total is the sum of every command counter.
func (s Stats) Total() uint64 {
	var n uint64
	for _, c := range s.Commands {
		n += c.Value
	}
	return n
}

// DumpResult is the last automatic dump.
type DumpResult struct {
	At      int64
	OK      bool
	Message string
}

// AutodumpStats is the decoded reply of autodump stats.
type AutodumpStats struct {
	Enabled bool
	Target  string
	Delay   int64
	// Next is the number of seconds before the next dump, when enabled.
	Next int64
	Last *DumpResult
}

// Snapshot is one poll of a server.
type Snapshot struct {
	At       time.Time
	Stats    Stats
	Autodump AutodumpStats
}

func (c *Client) php(line string) (*phpser.Array, error) {
	resp, err := c.Do(line)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	if resp.Mode != "PHP_SERIALIZE" {
		return nil, fmt.Errorf("%s: expected a PHP_SERIALIZE reply, got %q", line, resp.Mode)
	}
	arr, err := phpser.DecodeArray(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", line, err)
	}
	return arr, nil
}

// Stats fetches the command counters.
func (c *Client) Stats() (Stats, error) {
	arr, err := c.php("stats")
	if err != nil {
		return Stats{}, err
	}
	out := Stats{Uptime: arr.Int("uptime"), Users: arr.Int("users")}
	cmds := arr.Array("commands")
	for i := 0; i < cmds.Len(); i++ {
		name, _ := cmds.Keys[i].(string)
		v, _ := cmds.Values[i].(int64)
		out.Commands = append(out.Commands, stats.Counter{Name: name, Value: uint64(v)})
	}
	return out, nil
}

// AutodumpStats fetches the autodump state.
func (c *Client) AutodumpStats() (AutodumpStats, error) {
	arr, err := c.php("autodump stats")
	if err != nil {
		return AutodumpStats{}, err
	}
	out := AutodumpStats{
		Enabled: arr.Bool("enabled"),
		Target:  arr.String("target"),
		Delay:   arr.Int("delay"),
		Next:    arr.Int("next"),
	}
	if last := arr.Array("last"); last != nil {
		out.Last = &DumpResult{At: last.Int("at"), OK: last.Bool("result"), Message: last.String("message")}
	}
	return out, nil
}

// Snapshot polls both stats replies.
func (c *Client) Snapshot() (Snapshot, error) {
	st, err := c.Stats()
	if err != nil {
		return Snapshot{}, err
	}
	ad, err := c.AutodumpStats()
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{At: time.Now(), Stats: st, Autodump: ad}, nil
}
