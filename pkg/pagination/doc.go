// Package pagination provides the page fetchers and cursor used to walk a
// provider timeline backwards.
//
// The provider pages by id bound rather than by page number: each request
// carries max_id, and the next bound is the smallest id of the previous page
// minus one. Pages therefore have to be fetched one after another; there is no
// total page count to fan out over.
//
// Example usage:
//
//	fetcher, _ := pagination.NewSearchFetcher(client.DefaultBaseURL, `"東京" -filter:retweets`)
//	req, _ := fetcher.BuildRequest()
//	var cursor pagination.Cursor
//	// ... GET req.URL with req.Params ...
//	items, _ := fetcher.ExtractItems(body)
//	_ = cursor.Advance(items)
//	cursor.Apply(req.Params)
//
// Two fetchers exist:
//   - SearchFetcher reads items from the "statuses" list of a search response
//   - UserFetcher reads a user timeline, which is a bare list of items
//
// Both read their own entry of the shared rate_limit_status payload.
package pagination
