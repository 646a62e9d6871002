// Package protocol implements the wire formats of the group chat protocol.
//
// # Request Envelope
//
// A peer with no established session reaches another identity through an
// anonymous request envelope:
//
//	[0x20][32 recipient pk][32 sender pk][24 nonce][box(request_id || data)]
//
// The whole packet is bounded by MaxCryptoRequestSize. Request ids
// distinguish contact requests (RequestFriend) from liveness pings
// (RequestPing).
//
// # Group Packets
//
// Every group packet starts with a clear-text header:
//
//	[1 type][4 chat hash][64 sender extended pk][24 nonce]
//
// followed by the payload boxed under the shared key of the sender and the
// recipient. The chat hash is the first 4 bytes of BLAKE2b-256 of the chat
// public key and lets the receiver route a packet without trying every chat.
//
// Packet types:
//   - InviteRequest (0x5b): a semi-invite plus the joiner's nick
//   - InviteResponse (0x5c): the countersigned invite plus a chat snapshot
//   - Broadcast (0x5d): [1 kind][4 message number][body]
//
// # Certificates
//
// Certificates are fixed-size records, type byte first and signatures last:
//
//	semi-invite (137): type | invitee | invitee ts | invitee sig
//	invite      (273): semi-invite | inviter | inviter ts | inviter sig
//	common      (201): type | target | source | ts | source sig
//
// Each signature covers every byte before it. Integers are big-endian.
package protocol
