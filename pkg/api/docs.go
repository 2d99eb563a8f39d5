// Package api provides the read-only REST surface over the indexed data.
// @title TransferScan API
// @version 1.0
// @description REST API for querying indexed ERC-20 transfer events
// @basePath /api/v1
// @schemes http
package api
