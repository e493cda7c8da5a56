package controller

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"minicorr/internal/protocol"
)

var ErrUnparseable = errors.New("unparseable response")

// ThresholdPair is the fan hysteresis band. low <= high is not enforced here.
type ThresholdPair struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

const number = `[-+]?\d+(?:\.\d+)?`

var (
	// a decimal comma is accepted only here; some firmware builds print "23,4"
	temperatureRe = regexp.MustCompile(`[-+]?\d+(?:[.,]\d+)?`)

	lowRe   = regexp.MustCompile(`(?i)\b(?:min|low)\s*[=:]?\s*(` + number + `)`)
	highRe  = regexp.MustCompile(`(?i)\b(?:max|high)\s*[=:]?\s*(` + number + `)`)
	keyedRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*\s*[=:]\s*(` + number + `)`)
	pairRe  = regexp.MustCompile(`^\s*(` + number + `)\s*(?:[,;]\s*|\s+)(` + number + `)\s*$`)
)

// ParseTemperature reads a command 3 reply such as "23.4" or "T=23.4C".
func ParseTemperature(resp string) (float64, error) {
	if protocol.IsError(resp) {
		return 0, fmt.Errorf("%w: %s", ErrUnparseable, resp)
	}
	m := temperatureRe.FindString(resp)
	if m == "" {
		return 0, fmt.Errorf("%w: no temperature in %q", ErrUnparseable, resp)
	}
	v, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrUnparseable, resp, err)
	}
	return v, nil
}

// ParseThresholds reads a command 9 reply. Accepted shapes, tried in order:
// labelled "min=10 max=30", exactly two keyed values "T1=10 T2=30" (low
// first), and a bare pair "10 30" or "10,30".
func ParseThresholds(resp string) (ThresholdPair, error) {
	if protocol.IsError(resp) {
		return ThresholdPair{}, fmt.Errorf("%w: %s", ErrUnparseable, resp)
	}

	lo, hi := lowRe.FindStringSubmatch(resp), highRe.FindStringSubmatch(resp)
	if lo != nil && hi != nil {
		return thresholdPair(resp, lo[1], hi[1])
	}
	if kv := keyedRe.FindAllStringSubmatch(resp, -1); len(kv) == 2 {
		return thresholdPair(resp, kv[0][1], kv[1][1])
	}
	if p := pairRe.FindStringSubmatch(resp); p != nil {
		return thresholdPair(resp, p[1], p[2])
	}
	return ThresholdPair{}, fmt.Errorf("%w: expected two thresholds in %q", ErrUnparseable, resp)
}

func thresholdPair(resp, low, high string) (ThresholdPair, error) {
	l, err := strconv.ParseFloat(low, 64)
	if err != nil {
		return ThresholdPair{}, fmt.Errorf("%w: %q: %w", ErrUnparseable, resp, err)
	}
	h, err := strconv.ParseFloat(high, 64)
	if err != nil {
		return ThresholdPair{}, fmt.Errorf("%w: %q: %w", ErrUnparseable, resp, err)
	}
	return ThresholdPair{Low: l, High: h}, nil
}
