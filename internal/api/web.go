package api

import _ "embed"

// indexPage is the two-view form/table page. All validation and state live
// behind the JSON API; the page only renders and polls.
//
//go:embed web/index.html
var indexPage []byte
