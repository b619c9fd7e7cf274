package ftp

import "strings"

// pathName combines the working directory and a command parameter into an
// absolute path, following FTP semantics: a parameter starting with "/" is
// absolute, anything else is appended to cwd. With fullName=false the result
// is truncated to the containing directory. The result is normalized:
// trailing slashes are stripped (except for the root itself) and an empty
// result becomes "/".
func pathName(cwd, param string, fullName bool) string {
	var tmp string
	if strings.HasPrefix(param, "/") {
		tmp = param
	} else {
		tmp = cwd
		if param != "" {
			if !strings.HasSuffix(tmp, "/") {
				tmp += "/"
			}
			tmp += param
		}
	}

	if !fullName {
		if slash := strings.LastIndexByte(tmp, '/'); slash >= 0 {
			tmp = tmp[:slash]
		}
	}

	for len(tmp) > 1 && strings.HasSuffix(tmp, "/") {
		tmp = tmp[:len(tmp)-1]
	}
	if tmp == "" {
		tmp = "/"
	}
	return tmp
}

// fileName builds the full path of a command parameter and, with
// fullFilePath=false, strips everything up to and including the last slash,
// leaving the bare name.
func fileName(cwd, param string, fullFilePath bool) string {
	tmp := pathName(cwd, param, true)
	if !fullFilePath {
		if slash := strings.LastIndexByte(tmp, '/'); slash >= 0 {
			tmp = tmp[slash+1:]
		}
	}
	return tmp
}
