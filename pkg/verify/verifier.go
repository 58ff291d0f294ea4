// Package verify confirms that transferred files match their sources.
package verify

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/larrydiffey/difcopy/pkg/checksum"
	"github.com/larrydiffey/difcopy/pkg/core"
)

// Verifier compares source and destination digests
type Verifier struct {
	hasher *checksum.Provider
	log    *logrus.Entry
}

// New creates a verifier backed by hasher
func New(hasher *checksum.Provider, log *logrus.Entry) *Verifier {
	if hasher == nil {
		hasher = checksum.NewProvider()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Verifier{hasher: hasher, log: log}
}

// Verify hashes the destination, and the source unless item.SourceHash is
// already known, and compares them case-insensitively. It fills the hash
// fields and VerificationPassed. A mismatch returns core.ErrVerificationFailed;
// other errors are I/O failures.
func (v *Verifier) Verify(ctx context.Context, alg core.Algorithm, item *core.Item) error {
	if item.SourceHash == "" {
		sum, err := v.hasher.HashFile(ctx, item.SourcePath, alg)
		if err != nil {
			return err
		}
		item.SourceHash = sum
	}

	sum, err := v.hasher.HashFile(ctx, item.DestinationPath, alg)
	if err != nil {
		return err
	}
	item.DestinationHash = sum

	passed := strings.EqualFold(item.SourceHash, item.DestinationHash)
	item.VerificationPassed = lo.ToPtr(passed)

	if !passed {
		v.log.WithFields(logrus.Fields{
			"function":         "Verify",
			"item_id":          item.ID,
			"algorithm":        alg,
			"source_hash":      item.SourceHash,
			"destination_hash": item.DestinationHash,
		}).Warn("Checksum mismatch")
		return core.ErrVerificationFailed
	}
	return nil
}

// Failure describes an item that did not pass standalone verification
type Failure struct {
	Item  *core.Item
	Error error
}

// VerifyOperation re-hashes every completed, transferred item of op and
// returns those that no longer match. Items are not modified; the digests
// recorded during the original run are reused for sources that have since
// been moved away. When alg is none, the operation's algorithm is used, and
// SHA-256 if the operation had none.
func (v *Verifier) VerifyOperation(ctx context.Context, op *core.Operation, alg core.Algorithm) ([]Failure, error) {
	if !alg.Enabled() {
		alg = op.Verification
	}
	if !alg.Enabled() {
		alg = core.AlgorithmSHA256
	}

	var failures []Failure
	for _, item := range op.Items {
		if item.Status != core.ItemCompleted || item.Skipped {
			continue
		}

		probe := core.Item{
			ID:              item.ID,
			SourcePath:      item.SourcePath,
			DestinationPath: item.DestinationPath,
		}
		if alg == op.Verification {
			probe.SourceHash = item.SourceHash
		}

		err := v.Verify(ctx, alg, &probe)
		if errors.Is(err, core.ErrCancelled) {
			return failures, err
		}
		if err != nil {
			failures = append(failures, Failure{Item: item, Error: err})
		}
	}

	v.log.WithFields(logrus.Fields{
		"function":     "VerifyOperation",
		"operation_id": op.ID,
		"algorithm":    alg,
		"failures":     len(failures),
	}).Info("Standalone verification finished")

	return failures, nil
}
