package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"time"
)

const RingtoneSampleRate = 8000

// EncodeWAVPCM16LE wraps raw PCM16LE mono audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteWAVPCM16LETo(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVPCM16LETo writes raw PCM16LE mono audio bytes to out as a WAV stream.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, sampleRate int) error {
	const (
		numChannels   = 1
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	if sampleRate <= 0 {
		sampleRate = RingtoneSampleRate
	}

	dataSize := uint32(len(pcm))
	header := []any{
		[]byte("RIFF"), uint32(36) + dataSize, []byte("WAVE"),
		[]byte("fmt "), uint32(16), uint16(audioFormat), uint16(numChannels),
		uint32(sampleRate), uint32(sampleRate * numChannels * bitsPerSample / 8),
		uint16(numChannels * bitsPerSample / 8), uint16(bitsPerSample),
		[]byte("data"), dataSize,
	}

	w := bufio.NewWriter(out)
	for _, field := range header {
		if err := binary.Write(w, binary.LittleEndian, field); err != nil {
			return err
		}
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}

// RingCadence describes one period of a ring pattern: tone for On, silence
// for Off, mixing the listed frequencies.
type RingCadence struct {
	FrequenciesHz []float64
	On            time.Duration
	Off           time.Duration
}

// DefaultCadence is the North American 440+480 Hz, 2s on / 4s off ring.
func DefaultCadence() RingCadence {
	return RingCadence{
		FrequenciesHz: []float64{440, 480},
		On:            2 * time.Second,
		Off:           4 * time.Second,
	}
}

// SynthesizeRingPCM renders one cadence period as PCM16LE mono. Clients loop it.
func SynthesizeRingPCM(c RingCadence, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = RingtoneSampleRate
	}
	if len(c.FrequenciesHz) == 0 {
		c.FrequenciesHz = DefaultCadence().FrequenciesHz
	}
	onSamples := int(c.On.Seconds() * float64(sampleRate))
	offSamples := int(c.Off.Seconds() * float64(sampleRate))
	pcm := make([]byte, 2*(onSamples+offSamples))

	// Keep the mixed peak under full scale.
	amp := 0.4 * math.MaxInt16 / float64(len(c.FrequenciesHz))
	for i := 0; i < onSamples; i++ {
		t := float64(i) / float64(sampleRate)
		v := 0.0
		for _, f := range c.FrequenciesHz {
			v += math.Sin(2 * math.Pi * f * t)
		}
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(int16(v*amp)))
	}
	return pcm
}

// RingtoneWAV renders a cadence period as a WAV file.
func RingtoneWAV(c RingCadence) ([]byte, error) {
	return EncodeWAVPCM16LE(SynthesizeRingPCM(c, RingtoneSampleRate), RingtoneSampleRate)
}
