// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package indexer

// categoryNames maps the standard Torznab category ids to their names.
// Indexers may emit tracker-specific ids above 100000; those, and any id
// missing here, are skipped when building the result's category list.
var categoryNames = map[int]string{
	1000: "Console",
	1010: "Console/NDS",
	1020: "Console/PSP",
	1030: "Console/Wii",
	1040: "Console/XBox",
	1080: "Console/PS3",
	2000: "Movies",
	2010: "Movies/Foreign",
	2020: "Movies/Other",
	2030: "Movies/SD",
	2040: "Movies/HD",
	2045: "Movies/UHD",
	2050: "Movies/BluRay",
	2060: "Movies/3D",
	2070: "Movies/DVD",
	2080: "Movies/WEB-DL",
	3000: "Audio",
	3010: "Audio/MP3",
	3020: "Audio/Video",
	3030: "Audio/Audiobook",
	3040: "Audio/Lossless",
	3050: "Audio/Other",
	3060: "Audio/Foreign",
	4000: "PC",
	4010: "PC/0day",
	4020: "PC/ISO",
	4030: "PC/Mac",
	4040: "PC/Mobile-Other",
	4050: "PC/Games",
	4060: "PC/Mobile-iOS",
	4070: "PC/Mobile-Android",
	5000: "TV",
	5010: "TV/WEB-DL",
	5020: "TV/Foreign",
	5030: "TV/SD",
	5040: "TV/HD",
	5045: "TV/UHD",
	5050: "TV/Other",
	5060: "TV/Sport",
	5070: "TV/Anime",
	5080: "TV/Documentary",
	6000: "XXX",
	6010: "XXX/DVD",
	6020: "XXX/WMV",
	6030: "XXX/XviD",
	6040: "XXX/x264",
	6045: "XXX/UHD",
	6050: "XXX/Pack",
	6060: "XXX/ImageSet",
	6070: "XXX/Other",
	6080: "XXX/SD",
	6090: "XXX/WEB-DL",
	7000: "Books",
	7010: "Books/Mags",
	7020: "Books/EBook",
	7030: "Books/Comics",
	7040: "Books/Technical",
	7050: "Books/Other",
	7060: "Books/Foreign",
	8000: "Other",
	8010: "Other/Misc",
	8020: "Other/Hashed",
}

// CategoryName resolves a Torznab category id to its name.
func CategoryName(id int) (string, bool) {
	name, ok := categoryNames[id]
	return name, ok
}
