package exiftool

// neededKeys is the documented whitelist of metadata fields kept from the
// extractor's full output. Everything else is discarded.
var neededKeys = []string{
	"Title",
	"Subject",
	"Keywords",

	"Orientation",
	"Make",
	"Model",
	"Software",
	"Artist",
	"Copyright",

	"ExposureTime",
	"FNumber",
	"ExposureProgram",
	"ISO",
	"ShutterSpeedValue",
	"ApertureValue",
	"BrightnessValue",
	"ExposureCompensation",
	"MaxApertureValue",
	"ExposureMode",
	"Aperture",
	"ShutterSpeed",
	"LightValue",

	"LightSource",
	"Flash",
	"FlashMeteringMode",
	"MeteringMode",
	"SensingMethod",

	"FocalLength",
	"FocalLengthIn35mmFormat",
	"ScaleFactor35efl",
	"LensMake",
	"LensModel",

	"ColorSpace",
	"WhiteBalance",
	"WBShiftAB",
	"WBShiftGM",
	"WhiteBalanceBias",
	"WhiteBalanceFineTune",

	"SceneCaptureType",
	"Rating",

	"DateTimeOriginal",
	"CreateDate",
	"OffsetTime",
	"OffsetTimeOriginal",
	"OffsetTimeDigitized",

	"GPSAltitude",
	"GPSAltitudeRef",
	"GPSCoordinates",
	"GPSLatitude",
	"GPSLatitudeRef",
	"GPSLongitude",
	"GPSLongitudeRef",

	"ExifImageWidth",
	"ExifImageHeight",
	"ProfileDescription",
	"MPImageType",
}

// Curate filters the extractor's full output down to the whitelist,
// dropping keys the tool did not report.
func Curate(raw map[string]any) map[string]any {
	if raw == nil {
		return nil
	}
	curated := make(map[string]any, len(neededKeys))
	for _, key := range neededKeys {
		if value, ok := raw[key]; ok && value != nil {
			curated[key] = value
		}
	}
	return curated
}

// Format defaults applied when neither the color profile nor the decoder
// reports a color space.
var formatDefaultColorSpace = map[string]string{
	"jpeg": "sRGB",
	"png":  "sRGB",
	"webp": "sRGB",
	"gif":  "sRGB",
	"bmp":  "sRGB",
}

// InferColorSpace resolves the color space from three fallbacks in
// priority order: the embedded ICC profile description, the
// decoder-reported color space tag, then the format default. Returns ""
// when none applies.
func InferColorSpace(curated map[string]any, decoderColorSpace, format string) string {
	if curated != nil {
		if profile, ok := curated["ProfileDescription"].(string); ok && profile != "" {
			return profile
		}
	}
	if decoderColorSpace != "" {
		return decoderColorSpace
	}
	if def, ok := formatDefaultColorSpace[format]; ok {
		return def
	}
	return ""
}
