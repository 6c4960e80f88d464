// Package bridge drives sessions through an external protocol sidecar.
//
// Each connection attempt is one websocket to the sidecar. The first frame
// is a hello carrying the session name and its credentials; afterwards the
// sidecar pushes qr, open, creds and close frames, and the client sends
// logout and send requests that the sidecar acknowledges by id.
//
// Frames are JSON text messages:
//
//	{"type":"hello","session":"vendas","credentials":{...}}
//	{"type":"qr","code":"2@..."}
//	{"type":"open","identity":{"id":"5511...@s.whatsapp.net"}}
//	{"type":"creds","credentials":{...}}
//	{"type":"close","reason":{"kind":"restart_required"}}
//	{"type":"send","id":"01J...","to":"5511...","text":"hi"}
//	{"type":"ack","id":"01J...","message_id":"3EB0..."}
package bridge
