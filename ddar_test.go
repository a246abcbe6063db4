package ddar

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/anjor/ddar/internal/archive"
	"github.com/anjor/ddar/internal/util/randstream"

	"github.com/stretchr/testify/require"
)

const testChunker = "--chunker=rabin_window-size=16_min-size=256_target-size=1024_max-size=8192"

func writeRandomFile(t *testing.T, dir, name string, seed, size int64) (string, []byte) {
	content, err := io.ReadAll(randstream.New(seed, size))
	require.NoError(t, err)
	fn := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(fn, content, 0o644))
	return fn, content
}

func newTestDdar(t *testing.T, args ...string) (*Ddar, *bytes.Buffer, *bytes.Buffer) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	d, errs := NewWithWriters(append([]string{"ddar"}, args...), stdout, stderr)
	for _, err := range errs {
		t.Error(err)
	}
	require.Empty(t, errs)
	return d, stdout, stderr
}

func runDdar(t *testing.T, args ...string) (string, error) {
	d, stdout, _ := newTestDdar(t, args...)
	err := d.Run(context.Background())
	return stdout.String(), err
}

func TestDeterministicChunkRecords(t *testing.T) {

	fn, _ := writeRandomFile(t, t.TempDir(), "payload.dat", 42, 3*1024*1024+123)

	const TEST_ITERATIONS = 10

	var first [32]byte
	for iter := 0; iter < TEST_ITERATIONS; iter++ {
		ioMode := "--io-mode=sync"
		if iter%2 == 1 {
			ioMode = "--io-mode=async"
		}

		d, stdout, _ := newTestDdar(t,
			"--scan",
			"--chunker=ddar-v1",
			ioMode,
			"--ring-buffer-size=786432",
			"--emit-stdout=chunks-jsonl",
			"--emit-stderr=none",
			fn,
		)
		if err := d.Run(context.Background()); err != nil {
			t.Fatalf("Unexpected error processing %s: %s", fn, err)
		}

		if iter == 0 {
			first = sha256.Sum256(stdout.Bytes())
		} else {
			current := sha256.Sum256(stdout.Bytes())
			if current != first {
				t.Errorf("iteration %d: content sum does not match first content sum on iteration [ %s, %s ]", iter, hex.EncodeToString(first[:]), hex.EncodeToString(current[:]))
			}
		}
	}
}

func TestScanRecordsPartitionSources(t *testing.T) {
	dir := t.TempDir()
	fnA, contentA := writeRandomFile(t, dir, "a.dat", 1, 200*1024)
	fnB, contentB := writeRandomFile(t, dir, "b.dat", 2, 50*1024+7)

	d, stdout, _ := newTestDdar(t,
		"--scan",
		testChunker,
		"--jobs=2",
		"--emit-stdout=chunks-jsonl",
		"--emit-stderr=none",
		"--digest-encoding=base36",
		fnA, fnB,
	)
	require.NoError(t, d.Run(context.Background()))

	type record struct {
		Source string `json:"source"`
		Offset int64  `json:"offset"`
		Length int    `json:"length"`
		Digest string `json:"digest"`
		Last   bool   `json:"last"`
	}
	next := map[string]int64{}
	lasts := map[string]int{}
	sc := bufio.NewScanner(stdout)
	for sc.Scan() {
		var r record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		require.Equal(t, next[r.Source], r.Offset, "records of %s must be contiguous", r.Source)
		require.LessOrEqual(t, r.Length, 8192)
		require.NotEmpty(t, r.Digest)
		next[r.Source] += int64(r.Length)
		if r.Last {
			lasts[r.Source]++
		}
	}
	require.NoError(t, sc.Err())

	require.EqualValues(t, len(contentA), next[fnA])
	require.EqualValues(t, len(contentB), next[fnB])
	require.Equal(t, map[string]int{fnA: 1, fnB: 1}, lasts)

	smr := d.statSummary
	require.EqualValues(t, 2, smr.Streams)
	require.EqualValues(t, len(contentA)+len(contentB), smr.Chunks.Payload)
	require.EqualValues(t, smr.Chunks.Payload, smr.Ring.BytesRead)
	require.Equal(t, smr.Chunks.Count, smr.Chunks.Unique)
}

func TestScanCsvAndSummary(t *testing.T) {
	fn, content := writeRandomFile(t, t.TempDir(), "c.dat", 3, 64*1024)

	d, stdout, stderr := newTestDdar(t,
		"--scan",
		testChunker,
		"--hash=blake3",
		"--emit-stdout=chunks-csv",
		"--emit-stderr=stats-jsonl",
		fn,
	)
	require.NoError(t, d.Run(context.Background()))
	require.NoError(t, d.OutputSummary())

	var total int64
	var prevEnd int64
	for _, l := range strings.Split(strings.TrimSpace(stdout.String()), "\n") {
		f := strings.Split(l, ",")
		require.Len(t, f, 3)
		require.Len(t, f[0], 64) // hex of a 32 byte blake3 digest
		off, err := strconv.ParseInt(f[1], 10, 64)
		require.NoError(t, err)
		require.Equal(t, prevEnd, off)
		size, err := strconv.ParseInt(f[2], 10, 64)
		require.NoError(t, err)
		prevEnd = off + size
		total += size
	}
	require.EqualValues(t, len(content), total)

	var smr statSummary
	require.NoError(t, json.Unmarshal(stderr.Bytes(), &smr))
	require.Equal(t, "summary", smr.Event)
	require.Equal(t, "scan", smr.Mode)
	require.Equal(t, "blake3", smr.Hash)
	require.EqualValues(t, len(content), smr.Chunks.Payload)
	require.Contains(t, smr.SysStats.ArgvExpanded, "--hash=blake3")
}

func TestStatsText(t *testing.T) {
	fn, _ := writeRandomFile(t, t.TempDir(), "d.dat", 4, 32*1024)

	d, _, stderr := newTestDdar(t, "--scan", testChunker, fn)
	require.NoError(t, d.Run(context.Background()))
	require.NoError(t, d.OutputSummary())

	require.Contains(t, stderr.String(), "Processed 1 stream(s) totaling 32 KiB ( 32,768 bytes )")
	require.Contains(t, stderr.String(), "forced cut(s)")
}

func TestRusageAccounting(t *testing.T) {
	var sys sysStats
	sys.accountRusage(
		rusage{userNsecs: 100, sysNsecs: 10, maxRss: 1 << 20, minFlt: 5, volCtxSw: 1},
		rusage{userNsecs: 350, sysNsecs: 30, maxRss: 3 << 20, minFlt: 9, volCtxSw: 4, signals: 1},
	)
	require.EqualValues(t, 250, sys.CpuUserNsecs)
	require.EqualValues(t, 20, sys.CpuSysNsecs)
	require.EqualValues(t, 3<<20, sys.MaxRssBytes)
	require.EqualValues(t, 4, sys.MinFlt)
	require.EqualValues(t, 3, sys.CtxSwYield)
	require.EqualValues(t, 1, sys.Sigs)

	if _, ok := sampleRusage(); !ok {
		t.Skip("no resource usage on this platform")
	}

	fn, _ := writeRandomFile(t, t.TempDir(), "r.dat", 8, 64*1024)
	d, _, _ := newTestDdar(t, "--scan", testChunker, "--emit-stderr=none", fn)
	require.NoError(t, d.Run(context.Background()))
	require.Positive(t, d.statSummary.SysStats.MaxRssBytes)
	require.GreaterOrEqual(t, d.statSummary.SysStats.CpuUserNsecs, int64(0))
	require.Positive(t, d.statSummary.SysStats.ElapsedNsecs)
}

func TestArchiveCycle(t *testing.T) {
	dir := t.TempDir()
	ar := filepath.Join(dir, "ar")

	fnA, contentA := writeRandomFile(t, dir, "a.bin", 5, 96*1024)
	contentB := append(append([]byte(nil), contentA...), []byte("a trailing edit")...)
	fnB := filepath.Join(dir, "b.bin")
	require.NoError(t, os.WriteFile(fnB, contentB, 0o644))

	// first hyphen optional, ar(1) style
	d, _, _ := newTestDdar(t, "r", testChunker, "--compression=lz4", "--log-level=error", ar, fnA, fnB)
	require.NoError(t, d.Run(context.Background()))
	as := d.statSummary.Archive
	require.NotNil(t, as)
	require.EqualValues(t, 2, as.Members)
	require.Less(t, as.NewChunks, d.statSummary.Chunks.Count, "b.bin must reuse the chunks of a.bin")

	out, err := runDdar(t, "-t", ar)
	require.NoError(t, err)
	require.Equal(t, "a.bin\nb.bin\n", out)

	out, err = runDdar(t, "-tv", ar, "b*")
	require.NoError(t, err)
	require.Contains(t, out, "b.bin")
	require.NotContains(t, out, "a.bin")

	extracted := filepath.Join(dir, "b.out")
	_, err = runDdar(t, "-x", "-o", extracted, ar, "b.bin")
	require.NoError(t, err)
	got, err := os.ReadFile(extracted)
	require.NoError(t, err)
	require.True(t, bytes.Equal(contentB, got))

	out, err = runDdar(t, "x", "-o", "-", ar, "a.bin")
	require.NoError(t, err)
	require.True(t, bytes.Equal(contentA, []byte(out)))

	// creation-time parameters can not change
	_, err = runDdar(t, "-r", "--hash=blake3", "--log-level=error", ar, fnA)
	require.Error(t, err)

	_, err = runDdar(t, "-r", "--log-level=error", ar, fnA)
	require.ErrorIs(t, err, archive.ErrMemberExists)

	_, err = runDdar(t, "-d", ar, "a.bin")
	require.NoError(t, err)

	out, err = runDdar(t, "-t", ar)
	require.NoError(t, err)
	require.Equal(t, "b.bin\n", out)

	out, err = runDdar(t, "--fsck", "--log-level=error", ar)
	require.NoError(t, err)
	require.Empty(t, out)

	_, err = runDdar(t, "-x", "-o", filepath.Join(dir, "gone"), ar, "a.bin")
	require.ErrorIs(t, err, archive.ErrMemberNotFound)
	require.NoFileExists(t, filepath.Join(dir, "gone"))
}

func TestFsckReportsDamage(t *testing.T) {
	dir := t.TempDir()
	ar := filepath.Join(dir, "ar")
	fn, _ := writeRandomFile(t, dir, "m.bin", 6, 32*1024)

	_, err := runDdar(t, "-r", testChunker, "--compression=none", "--log-level=error", ar, fn)
	require.NoError(t, err)

	var victim string
	require.NoError(t, filepath.WalkDir(filepath.Join(ar, "objects"), func(p string, e os.DirEntry, err error) error {
		if err == nil && !e.IsDir() && victim == "" {
			victim = p
		}
		return err
	}))
	require.NotEmpty(t, victim)
	require.NoError(t, os.Remove(victim))

	out, err := runDdar(t, "--fsck", "--jobs=3", "--log-level=error", ar)
	require.ErrorIs(t, err, archive.ErrCorrupt)
	require.Contains(t, out, "could not read object "+filepath.Base(victim))
}

func TestArgvErrors(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"/tmp/ar"},
		{"-r", "-x", "/tmp/ar", "f"},
		{"-r", "/tmp/ar"},
		{"-r", "/tmp/ar", "-"},
		{"-x", "--name=n", "/tmp/ar", "m"},
		{"-t", "-o", "out", "/tmp/ar"},
		{"--fsck", "/tmp/ar", "extra"},
		{"--scan", "-", "-"},
		{"--scan", "--chunker=nope"},
		{"--scan", "--chunker=rabin_min-size=64"},
		{"--scan", "--hash=md5"},
		{"--scan", "--compression=brotli"},
		{"--scan", "--io-mode=mmap"},
		{"--scan", "--digest-encoding=base64"},
		{"--scan", "--jobs=0"},
		{"--scan", "--ring-segments=1"},
		{"--scan", "--io-mode=async", "--ring-segments=2"},
		{"--scan", "--emit-stdout=car"},
		{"--scan", "--emit-stdout=stats-text,chunks-csv"},
		{"--scan", "--emit-stdout=chunks-csv", "--emit-stderr=chunks-csv"},
		{"--scan", "--log-level=chatty"},
		{"-x", "--emit-stdout=chunks-jsonl", "-o", "-", "/tmp/ar", "m"},
		{"--no-such-option"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
			d, errs := NewWithWriters(append([]string{"ddar"}, args...), stdout, stderr)
			require.Nil(t, d)
			require.NotEmpty(t, errs)
			for _, err := range errs {
				require.NotErrorIs(t, err, ErrHelp)
			}
		})
	}
}

func TestHelp(t *testing.T) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	_, errs := NewWithWriters([]string{"ddar", "--help-all"}, stdout, stderr)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrHelp)
	require.Contains(t, stderr.String(), "--chunker")
	require.Contains(t, stderr.String(), "[C]hunker 'rabin'")
	require.Contains(t, stderr.String(), "target-size")
	require.Empty(t, stdout.String())
}

func TestArStyleArgv(t *testing.T) {
	require.Equal(t, []string{"ddar", "-rv", "ar"}, arStyleArgv([]string{"ddar", "rv", "ar"}))
	require.Equal(t, []string{"ddar", "-t", "ar"}, arStyleArgv([]string{"ddar", "-t", "ar"}))
	require.Equal(t, []string{"ddar"}, arStyleArgv([]string{"ddar"}))
}
