package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// DeviceIDHeaderName identifies the installation that issued a request.
const DeviceIDHeaderName = "device_id"
