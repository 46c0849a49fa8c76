package locator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "results/u1/j1~sample.annot.vcf", Key("results", "u1", "j1", "sample.annot.vcf"))
	assert.Equal(t, "u1/j1~a.vcf", Key("", "u1", "j1", "a.vcf"))
}

func TestResultFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sample.vcf", "sample.annot.vcf"},
		{"reads.fastq", "reads.annot.fastq"},
		{"noext", "noext.annot"},
		{"a.b.vcf", "a.b.annot.vcf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResultFileName(tt.in))
	}
}

func TestLogFileName(t *testing.T) {
	assert.Equal(t, "sample.vcf.count.log", LogFileName("sample.vcf"))
}

func TestParse(t *testing.T) {
	userID, jobID, filename, err := Parse("results/u1/j1~sample.annot.vcf")
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
	assert.Equal(t, "j1", jobID)
	assert.Equal(t, "sample.annot.vcf", filename)

	_, _, _, err = Parse("nodelimiter")
	assert.Error(t, err)

	_, _, _, err = Parse("results/u1/missing-separator.vcf")
	assert.Error(t, err)
}

func TestKeyRoundTrip(t *testing.T) {
	key := Key("results", "user-42", "0f7c", ResultFileName("sample.vcf"))
	userID, jobID, filename, err := Parse(key)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
	assert.Equal(t, "0f7c", jobID)
	assert.Equal(t, "sample.annot.vcf", filename)
}
