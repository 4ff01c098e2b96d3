// Package httpapp serves the Micropub endpoint.
//
// POST /micropub accepts an h-entry as JSON or form-encoded/multipart
// body, authorized by a bearer token that is verified against a remote
// IndieAuth token endpoint. On success it answers 201 with a Location
// header pointing at the created entry. GET /micropub answers the
// q=config and q=syndicate-to queries. Created entries and their
// uploaded media are served under /entries/ and /media/.
package httpapp
