package sink

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nupi-ai/vad-recorder/internal/audio"
)

func TestWriteWAVHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speech.wav")
	samples := audio.Tone(1600, 0.25)

	require.NoError(t, WriteWAV(path, samples, DefaultFormat))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, 44+len(samples)*2)

	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Equal(t, "fmt ", string(data[12:16]))
	assert.EqualValues(t, 1, binary.LittleEndian.Uint16(data[20:22]), "PCM")
	assert.EqualValues(t, 1, binary.LittleEndian.Uint16(data[22:24]), "mono")
	assert.EqualValues(t, 16000, binary.LittleEndian.Uint32(data[24:28]))
	assert.EqualValues(t, 32000, binary.LittleEndian.Uint32(data[28:32]), "byte rate")
	assert.EqualValues(t, 16, binary.LittleEndian.Uint16(data[34:36]))
	assert.Equal(t, "data", string(data[36:40]))
	assert.EqualValues(t, len(samples)*2, binary.LittleEndian.Uint32(data[40:44]))
	assert.EqualValues(t, uint16(samples[0]), binary.LittleEndian.Uint16(data[44:46]))
}

func TestWriteWAVIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.wav")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o644))

	require.NoError(t, WriteWAV(path, []int16{1, 2, 3}, DefaultFormat))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file left behind")
	assert.Equal(t, "out.wav", entries[0].Name())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestWriteWAVRejectsEmptyAndBadFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.wav")

	assert.ErrorIs(t, WriteWAV(path, nil, DefaultFormat), ErrEmptyBuffer)
	assert.ErrorIs(t, WriteWAV(path, []int16{1}, Format{SampleRate: 16000, Channels: 2, BitDepth: 16}), ErrUnsupportedFormat)
	assert.ErrorIs(t, WriteWAV(path, []int16{1}, Format{SampleRate: 16000, Channels: 1, BitDepth: 24}), ErrUnsupportedFormat)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "no file on failure")
}

func TestWriteWAVMissingDirectory(t *testing.T) {
	err := WriteWAV(filepath.Join(t.TempDir(), "missing", "x.wav"), []int16{1}, DefaultFormat)
	assert.Error(t, err)
}

func TestReadWAVRecoversSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speech.wav")
	samples := []int16{0, 1, -1, 32767, -32768, 1234}
	require.NoError(t, NewWriter().Write(path, samples))

	got, format, err := ReadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultFormat, format)
	assert.Equal(t, samples, got)
}

func TestReadWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a riff file at all......................"), 0o644))

	_, _, err := ReadWAV(path)
	assert.Error(t, err)

	_, _, err = ReadWAV(filepath.Join(t.TempDir(), "nope.wav"))
	assert.Error(t, err)
}
