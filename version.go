package sing

const Version = "0.1.0"

var VersionStr = "v" + Version
