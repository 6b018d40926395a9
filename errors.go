package recommender

import (
	"github.com/w-h-a/recommender/embedder"
	"github.com/w-h-a/recommender/internal/service/recommender"
	"github.com/w-h-a/recommender/rater"
	"github.com/w-h-a/recommender/record"
	"github.com/w-h-a/recommender/retriever"
	"github.com/w-h-a/recommender/storer"
)

var (
	ErrInvalidRecord      = recommender.ErrInvalidRecord
	ErrInvalidK           = retriever.ErrInvalidK
	ErrInvalidConfig      = rater.ErrInvalidConfig
	ErrLabelAbsent        = record.ErrLabelAbsent
	ErrUnknownField       = record.ErrUnknownField
	ErrRecordNotFound     = storer.ErrRecordNotFound
	ErrDuplicateID        = storer.ErrDuplicateID
	ErrMalformedEmbedding = storer.ErrMalformedEmbedding
)

type (
	SerializationError     = record.SerializationError
	EncodingError          = embedder.EncodingError
	DimensionMismatchError = retriever.DimensionMismatchError
	InsufficientDataError  = rater.InsufficientDataError
	ModelNotFoundError     = rater.ModelNotFoundError
	StoreReadError         = storer.StoreReadError
	StoreWriteError        = storer.StoreWriteError
)
