package audio

import (
	"encoding/binary"
	"math"
)

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(binary.LittleEndian.Uint16(pcm[i*4:])))
		r := int32(int16(binary.LittleEndian.Uint16(pcm[i*4+2:])))
		avg := min(max((l+r)/2, math.MinInt16), math.MaxInt16)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(avg)))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := sampleAt(pcm, srcIdx)
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = sampleAt(pcm, srcIdx+1)
		}
		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// ToSpeech downmixes and resamples pcm from src into [SpeechFormat]. Sources
// with more than two channels keep only the first two. The input is returned
// as-is when it already matches.
func ToSpeech(pcm []byte, src Format) []byte {
	if src == SpeechFormat {
		return pcm
	}
	if src.Channels > 2 {
		pcm = firstTwoChannels(pcm, src.Channels)
		src.Channels = 2
	}
	if src.Channels == 2 {
		pcm = StereoToMono(pcm)
	}
	return ResampleMono16(pcm, src.SampleRate, SpeechFormat.SampleRate)
}

func firstTwoChannels(pcm []byte, channels int) []byte {
	frame := channels * BytesPerSample
	frames := len(pcm) / frame
	out := make([]byte, 0, frames*4)
	for i := range frames {
		out = append(out, pcm[i*frame:i*frame+4]...)
	}
	return out
}

// RMS returns the root-mean-square energy of a 16-bit PCM buffer in sample
// units (0 to 32767). Returns 0 for buffers shorter than one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(sampleAt(pcm, i))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// IsSilent reports whether every sample in pcm is zero. An empty buffer is
// silent.
func IsSilent(pcm []byte) bool {
	for _, b := range pcm {
		if b != 0 {
			return false
		}
	}
	return true
}

// Samples decodes pcm into ints, the representation go-audio buffers use.
func Samples(pcm []byte) []int {
	out := make([]int, len(pcm)/2)
	for i := range out {
		out[i] = int(sampleAt(pcm, i))
	}
	return out
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*2:]))
}
