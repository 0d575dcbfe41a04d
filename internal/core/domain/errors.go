package domain

import "github.com/rotisserie/eris"

var (
	// ErrTokenNotFound means no access token was observed within the retry budget.
	ErrTokenNotFound = eris.New("access token not found")
	// ErrExtentResolution means the geocoder returned no bounding box.
	ErrExtentResolution = eris.New("extent resolution failed")
	// ErrInvalidExtent means a bounding box or projected extent is degenerate.
	ErrInvalidExtent = eris.New("invalid extent")
	// ErrTileFetch means a single tile request failed.
	ErrTileFetch = eris.New("tile fetch failed")
	// ErrMalformedTilePayload means a downloaded tile is not the expected JSON.
	ErrMalformedTilePayload = eris.New("malformed tile payload")
	// ErrSchemaWiden means adding an attribute column failed.
	ErrSchemaWiden = eris.New("schema widen failed")
	// ErrInsert means inserting a feature row failed.
	ErrInsert = eris.New("feature insert failed")
	// ErrMissingGeometry means a feature carried no usable geometry.
	ErrMissingGeometry = eris.New("missing geometry")
	// ErrSRIDNotFound means the portal page advertised no projection.
	ErrSRIDNotFound = eris.New("portal SRID not found")
	// ErrNoLayers means the portal advertised no matching layers.
	ErrNoLayers = eris.New("no matching layers")
	// ErrRetryBudgetExhausted means tiles were still missing after the last pass.
	ErrRetryBudgetExhausted = eris.New("retry budget exhausted")
)
