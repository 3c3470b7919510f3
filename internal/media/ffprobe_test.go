package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbeOutput(t *testing.T) {
	tests := []struct {
		name        string
		json        string
		wantErr     error
		wantWidth   uint32
		wantDur     uint64
		wantBitrate *uint64
		wantAudio   bool
	}{
		{
			name: "stream duration and bitrate",
			json: `{"format":{"duration":"10.000000","bit_rate":"900000","format_name":"mov,mp4"},
				"streams":[{"codec_type":"video","codec_name":"h264","width":1920,"height":1080,
				"duration":"9.960000","bit_rate":"800000","disposition":{"default":1}},
				{"codec_type":"audio","codec_name":"aac"}]}`,
			wantWidth:   1920,
			wantDur:     9960,
			wantBitrate: ptr(uint64(800000)),
			wantAudio:   true,
		},
		{
			name: "falls back to container duration",
			json: `{"format":{"duration":"4.5"},
				"streams":[{"codec_type":"video","codec_name":"vp9","width":640,"height":360}]}`,
			wantWidth: 640,
			wantDur:   4500,
		},
		{
			name: "container bitrate is not reported",
			json: `{"format":{"filename":"clip.mkv","format_name":"matroska,webm","duration":"10.000",
				"size":"1250000","bit_rate":"1000000"},
				"streams":[{"codec_type":"video","codec_name":"h264","width":1280,"height":720}]}`,
			wantWidth: 1280,
			wantDur:   10000,
		},
		{
			name: "no bitrate anywhere",
			json: `{"format":{"duration":"1.0"},
				"streams":[{"codec_type":"video","width":320,"height":240}]}`,
			wantWidth: 320,
			wantDur:   1000,
		},
		{
			name: "cover art is skipped",
			json: `{"format":{"duration":"3.0"},
				"streams":[{"codec_type":"video","width":600,"height":600,"disposition":{"attached_pic":1}},
				{"codec_type":"video","width":1280,"height":720}]}`,
			wantWidth: 1280,
			wantDur:   3000,
		},
		{
			name:    "audio only",
			json:    `{"format":{"duration":"3.0"},"streams":[{"codec_type":"audio"}]}`,
			wantErr: ErrUnsupportedFormat,
		},
		{
			name:    "missing duration",
			json:    `{"format":{},"streams":[{"codec_type":"video","width":10,"height":10}]}`,
			wantErr: ErrCorrupt,
		},
		{
			name:    "zero dimensions",
			json:    `{"format":{"duration":"1"},"streams":[{"codec_type":"video","width":0,"height":0}]}`,
			wantErr: ErrCorrupt,
		},
		{
			name:    "truncated json",
			json:    `{"format":{"duration":"1"`,
			wantErr: ErrCorrupt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := parseProbeOutput([]byte(tt.json))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantWidth, info.Width)
			assert.Equal(t, tt.wantDur, info.DurationMs)
			assert.Equal(t, tt.wantBitrate, info.Bitrate)
			assert.Equal(t, tt.wantAudio, info.HasAudio)
		})
	}
}

func TestParseSeconds(t *testing.T) {
	ms, err := parseSeconds("12.3456")
	require.NoError(t, err)
	assert.Equal(t, uint64(12346), ms)

	_, err = parseSeconds("N/A")
	assert.Error(t, err)
	_, err = parseSeconds("-1")
	assert.Error(t, err)
}

func ptr[T any](v T) *T {
	return &v
}
