package ddar

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"runtime"
	"time"

	"github.com/anjor/ddar/internal/archive"
	ddchunker "github.com/anjor/ddar/internal/chunker"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/cpuid/v2"
)

// seenHashSize is how much of a digest identifies a chunk for the purpose of
// the unique counts: plenty for any realistic amount of chunks.
const seenHashSize = 16

type seenChunks map[[seenHashSize]byte]struct{}

type chunkStats struct {
	Count         int64 `json:"count"`
	Forced        int64 `json:"forced"`
	Payload       int64 `json:"payload"`
	Unique        int64 `json:"unique"`
	UniquePayload int64 `json:"unique_payload"`
	MinSize       int   `json:"min_size"`
	MaxSize       int   `json:"max_size"`
}

type archiveStats struct {
	Members     int64 `json:"members"`
	NewChunks   int64 `json:"new_chunks"`
	NewBytes    int64 `json:"new_bytes"`
	StoredBytes int64 `json:"stored_bytes"`
}

type sysStats struct {
	ArgvInitial  []string `json:"argv_initial"`
	ArgvExpanded []string `json:"argv_expanded"`
	ElapsedNsecs int64    `json:"elapsed_nsecs"`

	CpuUserNsecs int64 `json:"cpu_user_nsecs"`
	CpuSysNsecs  int64 `json:"cpu_sys_nsecs"`
	MaxRssBytes  int64 `json:"max_rss_bytes"`
	MinFlt       int64 `json:"cache_minflt"`
	MajFlt       int64 `json:"cache_majflt"`
	BioRead      int64 `json:"blockio_in"`
	BioWrite     int64 `json:"blockio_out"`
	Sigs         int64 `json:"signals_received"`
	CtxSwYield   int64 `json:"context_switch_yield"`
	CtxSwForced  int64 `json:"context_switch_forced"`

	GoVersion  string `json:"go_version"`
	GoOS       string `json:"go_os"`
	GoArch     string `json:"go_arch"`
	GoMaxProcs int    `json:"go_max_procs"`
	CPUBrand   string `json:"cpu_brand"`
	CPUCores   int    `json:"cpu_physical_cores"`
	CPUAVX2    bool   `json:"cpu_avx2"`
	CPUSHA     bool   `json:"cpu_sha_ni"`
}

// rusage is a process resource usage sample, see sampleRusage()
type rusage struct {
	userNsecs, sysNsecs int64
	maxRss              int64
	minFlt, majFlt      int64
	inBlock, outBlock   int64
	signals             int64
	volCtxSw, invCtxSw  int64
}

// accountRusage charges what the process consumed between two samples. The
// peak RSS is not a counter and is taken as is.
func (s *sysStats) accountRusage(before, after rusage) {
	s.MaxRssBytes = after.maxRss
	s.CpuUserNsecs += after.userNsecs - before.userNsecs
	s.CpuSysNsecs += after.sysNsecs - before.sysNsecs
	s.MinFlt += after.minFlt - before.minFlt
	s.MajFlt += after.majFlt - before.majFlt
	s.BioRead += after.inBlock - before.inBlock
	s.BioWrite += after.outBlock - before.outBlock
	s.Sigs += after.signals - before.signals
	s.CtxSwYield += after.volCtxSw - before.volCtxSw
	s.CtxSwForced += after.invCtxSw - before.invCtxSw
}

type statSummary struct {
	Event    string          `json:"event"`
	Mode     string          `json:"mode"`
	Chunker  string          `json:"chunker"`
	Hash     string          `json:"hash"`
	Streams  int64           `json:"streams"`
	Chunks   chunkStats      `json:"chunks"`
	Archive  *archiveStats   `json:"archive,omitempty"`
	Ring     ddchunker.Stats `json:"ring"`
	SysStats sysStats        `json:"sys"`
}

func setStatSummary() statSummary {
	return statSummary{
		Event: "summary",
		Chunks: chunkStats{
			MinSize: math.MaxInt,
		},
		SysStats: sysStats{
			GoVersion:  runtime.Version(),
			GoOS:       runtime.GOOS,
			GoArch:     runtime.GOARCH,
			GoMaxProcs: runtime.GOMAXPROCS(-1),
			CPUBrand:   cpuid.CPU.BrandName,
			CPUCores:   cpuid.CPU.PhysicalCores,
			CPUAVX2:    cpuid.CPU.Supports(cpuid.AVX2),
			CPUSHA:     cpuid.CPU.Supports(cpuid.SHA),
		},
	}
}

func (d *Ddar) accountChunk(c ddchunker.Chunk, dgst []byte) {
	var k [seenHashSize]byte
	copy(k[:], dgst)

	d.mu.Lock()
	defer d.mu.Unlock()

	cs := &d.statSummary.Chunks
	cs.Count++
	cs.Payload += int64(c.Size)
	if c.Forced {
		cs.Forced++
	}
	if c.Size < cs.MinSize {
		cs.MinSize = c.Size
	}
	if c.Size > cs.MaxSize {
		cs.MaxSize = c.Size
	}

	if d.seenChunks == nil {
		d.seenChunks = make(seenChunks, 1024)
	}
	if _, seen := d.seenChunks[k]; !seen {
		d.seenChunks[k] = struct{}{}
		cs.Unique++
		cs.UniquePayload += int64(c.Size)
	}
}

func (d *Ddar) accountStream(s ddchunker.Stats) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.statSummary.Streams++
	r := &d.statSummary.Ring
	r.BytesRead += s.BytesRead
	r.ReadCalls += s.ReadCalls
	r.Refills += s.Refills
	r.ShortReads += s.ShortReads
	r.Waits += s.Waits
	r.WaitNsecs += s.WaitNsecs
	r.Chunks += s.Chunks
	r.ForcedCuts += s.ForcedCuts
}

func (d *Ddar) accountMember(s archive.MemberStats) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.statSummary.Archive == nil {
		d.statSummary.Archive = &archiveStats{}
	}
	as := d.statSummary.Archive
	as.Members++
	as.NewChunks += s.NewChunks
	as.NewBytes += s.NewBytes
	as.StoredBytes += s.StoredBytes
}

// OutputSummary renders the statistics of the last Run to the stats emitters.
func (d *Ddar) OutputSummary() error {
	smr := d.statSummary
	if smr.Chunks.Count == 0 {
		smr.Chunks.MinSize = 0
	}

	if w := d.cfg.emitters[emStatsJsonl]; w != nil {
		jsonl, err := json.Marshal(smr)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(jsonl, '\n')); err != nil {
			return fmt.Errorf("emitting '%s' failed: %s", emStatsJsonl, err)
		}
	}

	if w := d.cfg.emitters[emStatsText]; w != nil {
		if err := writeStatsText(w, &smr); err != nil {
			return fmt.Errorf("emitting '%s' failed: %s", emStatsText, err)
		}
	}

	return nil
}

func writeStatsText(w io.Writer, smr *statSummary) error {
	cs := smr.Chunks

	var avg int64
	if cs.Count > 0 {
		avg = cs.Payload / cs.Count
	}

	var dedup float64
	if cs.Payload > 0 {
		dedup = 100 * (1 - float64(cs.UniquePayload)/float64(cs.Payload))
	}

	_, err := fmt.Fprintf(w, `
Ran with --chunker=%s --hash=%s
Processed %s stream(s) totaling %s ( %s bytes ) in %s chunks
    unique: %s chunks, %s ( %.2f%% saved by deduplication )
     sizes: min %s, avg %s, max %s, %s forced cut(s)
      read: %s, %s read call(s), %s refill(s), %s short read(s), %s wait(s) for %s
`,
		smr.Chunker, smr.Hash,
		humanize.Comma(smr.Streams),
		humanize.IBytes(uint64(cs.Payload)), humanize.Comma(cs.Payload),
		humanize.Comma(cs.Count),
		humanize.Comma(cs.Unique), humanize.IBytes(uint64(cs.UniquePayload)), dedup,
		humanize.IBytes(uint64(cs.MinSize)), humanize.IBytes(uint64(avg)), humanize.IBytes(uint64(cs.MaxSize)),
		humanize.Comma(cs.Forced),
		humanize.IBytes(uint64(smr.Ring.BytesRead)),
		humanize.Comma(smr.Ring.ReadCalls),
		humanize.Comma(smr.Ring.Refills),
		humanize.Comma(smr.Ring.ShortReads),
		humanize.Comma(smr.Ring.Waits),
		time.Duration(smr.Ring.WaitNsecs).Round(time.Microsecond),
	)
	if err != nil {
		return err
	}

	if as := smr.Archive; as != nil {
		var ratio float64
		if as.NewBytes > 0 {
			ratio = float64(as.StoredBytes) / float64(as.NewBytes)
		}
		if _, err := fmt.Fprintf(w, "   archive: %s member(s), %s new chunk(s), %s new, %s stored ( ratio %.3f )\n",
			humanize.Comma(as.Members),
			humanize.Comma(as.NewChunks),
			humanize.IBytes(uint64(as.NewBytes)),
			humanize.IBytes(uint64(as.StoredBytes)),
			ratio,
		); err != nil {
			return err
		}
	}

	sys := smr.SysStats
	_, err = fmt.Fprintf(w, "   runtime: %s wall, %s user, %s sys, %s max rss on %s ( %d cores, %s/%s )\n\n",
		time.Duration(sys.ElapsedNsecs).Round(time.Millisecond),
		time.Duration(sys.CpuUserNsecs).Round(time.Millisecond),
		time.Duration(sys.CpuSysNsecs).Round(time.Millisecond),
		humanize.IBytes(uint64(sys.MaxRssBytes)),
		sys.CPUBrand, sys.CPUCores,
		sys.GoOS, sys.GoArch,
	)
	return err
}
