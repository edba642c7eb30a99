package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracehost/emtrace/internal/utils"
)

func TestDetectByteOrder(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    ByteOrder
		wantErr bool
	}{
		{name: "ascending single byte", input: []byte{0}, want: LittleEndian},
		{name: "ascending four bytes", input: []byte{0, 1, 2, 3}, want: LittleEndian},
		{name: "descending four bytes", input: []byte{3, 2, 1, 0}, want: BigEndian},
		{name: "ascending sixteen bytes", input: []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, want: LittleEndian},
		{name: "shuffled not ascending or descending", input: []byte{1, 0, 3, 2}, wantErr: true},
		{name: "duplicate byte", input: []byte{0, 0, 2, 3}, wantErr: true},
		{name: "byte out of range", input: []byte{0, 1, 2, 9}, wantErr: true},
		{name: "empty", input: []byte{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectByteOrder(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDetectByteOrderErrorKind(t *testing.T) {
	_, err := DetectByteOrder([]byte{1, 0, 3, 2})
	require.Error(t, err)
	require.True(t, utils.IsKind(err, utils.KindByteorderUndetectable))
}

func TestDetectByteOrderLengthOutOfRange(t *testing.T) {
	_, err := DetectByteOrder(make([]byte, 257))
	require.Error(t, err)
}
