package syncer

import (
	"github.com/marksync/marksync/metrics"
)

const (
	// subsystem shared by all metrics exposed by this package.
	subsystem = "syncer"
	direction = "direction"
	outcome   = "outcome"
)

var (
	bookmarksTransferred = metrics.NewCounter(
		"bookmarks_transferred",
		subsystem,
		"total bookmarks sent and received",
		[]string{direction})

	syncsCompleted = metrics.NewCounter(
		"syncs_completed",
		subsystem,
		"total two-way syncs by outcome",
		[]string{outcome})

	messagesDropped = metrics.NewCounter(
		"messages_dropped",
		subsystem,
		"total inbound messages dropped before processing",
		[]string{"reason"})

	duplicatesResolved = metrics.NewCounter(
		"duplicates_resolved",
		subsystem,
		"total duplicates resolved automatically during merges",
		[]string{})

	candidatesSurfaced = metrics.NewCounter(
		"duplicate_candidates",
		subsystem,
		"total ambiguous candidates surfaced for manual resolution",
		[]string{})
)
