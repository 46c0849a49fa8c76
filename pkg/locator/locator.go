// Package locator implements the object key convention shared by hot
// storage, cold storage, and log artifacts:
//
//	prefix/user_id/job_id~filename
package locator

import (
	"fmt"
	"path"
	"strings"
)

// Separator joins the job id and filename inside the final path segment.
const Separator = "~"

// Key builds an object key for filename under prefix/userID with the job id
// prepended to the final segment.
func Key(prefix, userID, jobID, filename string) string {
	return path.Join(prefix, userID, jobID+Separator+filename)
}

// ResultFileName derives the result artifact name produced by the analysis
// task for the given input file: the extension is preserved and an "annot"
// marker is inserted before it (sample.vcf -> sample.annot.vcf).
func ResultFileName(inputFileName string) string {
	ext := path.Ext(inputFileName)
	base := strings.TrimSuffix(inputFileName, ext)
	if ext == "" {
		return base + ".annot"
	}
	return base + ".annot" + ext
}

// LogFileName derives the log artifact name for the given input file
// (sample.vcf -> sample.vcf.count.log).
func LogFileName(inputFileName string) string {
	return inputFileName + ".count.log"
}

// Parse splits a key built by Key back into its components.
func Parse(key string) (userID, jobID, filename string, err error) {
	parts := strings.Split(key, "/")
	if len(parts) < 3 {
		return "", "", "", fmt.Errorf("locator: key %q does not match prefix/user_id/job_id%sfilename", key, Separator)
	}
	userID = parts[len(parts)-2]
	last := parts[len(parts)-1]
	jobID, filename, ok := strings.Cut(last, Separator)
	if !ok || jobID == "" || filename == "" {
		return "", "", "", fmt.Errorf("locator: key %q has no %q segment", key, Separator)
	}
	return userID, jobID, filename, nil
}
